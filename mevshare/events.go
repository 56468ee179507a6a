package mevshare

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrMalformedEvent = errors.New("malformed event frame")

// EventKind is the closed set of event variants published on the stream.
type EventKind uint8

const (
	EventKindTransaction EventKind = iota
	EventKindBundle
)

func (k EventKind) String() string {
	switch k {
	case EventKindTransaction:
		return "transaction"
	case EventKindBundle:
		return "bundle"
	default:
		return "unknown"
	}
}

// TransactionEvent is a hint about a single pending transaction.
type TransactionEvent struct {
	Hash        common.Hash     `json:"hash"`
	Logs        []CleanLog      `json:"logs,omitempty"`
	MevGasPrice *hexutil.Big    `json:"mevGasPrice,omitempty"`
	GasUsed     *hexutil.Uint64 `json:"gasUsed,omitempty"`
}

// BundleEvent is a hint about a pending bundle and its constituent
// transactions, in bundle body order.
type BundleEvent struct {
	Hash        common.Hash     `json:"hash"`
	Logs        []CleanLog      `json:"logs,omitempty"`
	Txs         []TxHint        `json:"txs"`
	MevGasPrice *hexutil.Big    `json:"mevGasPrice,omitempty"`
	GasUsed     *hexutil.Uint64 `json:"gasUsed,omitempty"`
}

// Event is the classified form of a stream frame. Exactly one of Transaction
// and Bundle is set, matching Kind. The variant is decided once at parse time
// from the nullity of the txs field; downstream code switches on Kind only.
type Event struct {
	Kind        EventKind
	Transaction *TransactionEvent
	Bundle      *BundleEvent
}

func (e *Event) Hash() common.Hash {
	if e.Kind == EventKindBundle {
		return e.Bundle.Hash
	}
	return e.Transaction.Hash
}

func parseEvent(frame []byte) (*Event, error) {
	var hint Hint
	if err := json.Unmarshal(frame, &hint); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	return classifyHint(&hint), nil
}

// classifyHint turns a raw hint record into a tagged event.
// A null txs field means a plain transaction hint, a non-null one (even if
// empty) means a bundle hint.
func classifyHint(hint *Hint) *Event {
	if hint.Txs == nil {
		return &Event{
			Kind: EventKindTransaction,
			Transaction: &TransactionEvent{
				Hash:        hint.Hash,
				Logs:        hint.Logs,
				MevGasPrice: hint.MevGasPrice,
				GasUsed:     hint.GasUsed,
			},
		}
	}
	return &Event{
		Kind: EventKindBundle,
		Bundle: &BundleEvent{
			Hash:        hint.Hash,
			Logs:        hint.Logs,
			Txs:         hint.Txs,
			MevGasPrice: hint.MevGasPrice,
			GasUsed:     hint.GasUsed,
		},
	}
}
