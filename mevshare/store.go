package mevshare

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// EventStore archives classified stream events. It is optional: when
// configured, the dispatcher persists every delivered event in the
// background.
type EventStore interface {
	InsertEvent(ctx context.Context, event *Event) error
	Close() error
}

// Expected schema:
//
//	CREATE TABLE mevshare_events (
//	    id          bigserial primary key,
//	    hash        bytea     not null,
//	    kind        text      not null,
//	    body        jsonb     not null,
//	    received_at timestamp not null default now()
//	);
type DBEventStore struct {
	db          *sqlx.DB
	insertEvent *sqlx.NamedStmt
}

type dbEvent struct {
	Hash       []byte          `db:"hash"`
	Kind       string          `db:"kind"`
	Body       json.RawMessage `db:"body"`
	ReceivedAt time.Time       `db:"received_at"`
}

var insertEventQuery = `
INSERT INTO mevshare_events (hash, kind, body, received_at)
VALUES (:hash, :kind, :body, :received_at)`

func NewDBEventStore(postgresDSN string) (*DBEventStore, error) {
	db, err := sqlx.Connect("postgres", postgresDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(20)

	insertEvent, err := db.PrepareNamed(insertEventQuery)
	if err != nil {
		return nil, err
	}

	return &DBEventStore{
		db:          db,
		insertEvent: insertEvent,
	}, nil
}

func (s *DBEventStore) InsertEvent(ctx context.Context, event *Event) error {
	var row dbEvent
	row.Hash = event.Hash().Bytes()
	row.Kind = event.Kind.String()
	row.ReceivedAt = time.Now()

	var err error
	switch event.Kind {
	case EventKindTransaction:
		row.Body, err = json.Marshal(event.Transaction)
	case EventKindBundle:
		row.Body, err = json.Marshal(event.Bundle)
	}
	if err != nil {
		return err
	}

	_, err = s.insertEvent.ExecContext(ctx, row)
	return err
}

func (s *DBEventStore) Close() error {
	return s.db.Close()
}
