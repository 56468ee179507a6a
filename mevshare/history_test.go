package mevshare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestGetEventHistory(t *testing.T) {
	entries := make([]HistoryEntry, 25)
	for i := range entries {
		entries[i] = HistoryEntry{
			Block:     uint64(100 + i),
			Timestamp: int64(1700000000 + i),
			Hint:      Hint{Hash: common.BigToHash(common.Big1)},
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, historyPath, r.URL.Path)

		limit := len(entries)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			require.NoError(t, err)
			limit = parsed
		}
		offset := 0
		if raw := r.URL.Query().Get("offset"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			require.NoError(t, err)
			offset = parsed
		}
		page := entries[offset:]
		if len(page) > limit {
			page = page[:limit]
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer server.Close()

	client := newHistoryClient(server.URL, 5*time.Second)

	got, err := client.getEventHistory(context.Background(), &HistoryParams{Limit: 10})
	require.NoError(t, err)
	require.LessOrEqual(t, len(got), 10)
	require.Equal(t, entries[:10], got)

	// paging picks up where the previous query left off
	got, err = client.getEventHistory(context.Background(), &HistoryParams{Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Equal(t, entries[20:], got)
}

func TestGetEventHistoryQuery(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newHistoryClient(server.URL, 5*time.Second)
	_, err := client.getEventHistory(context.Background(), &HistoryParams{
		BlockStart:     100,
		BlockEnd:       200,
		TimestampStart: 1700000000,
		Limit:          50,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, query["blockStart"])
	require.Equal(t, []string{"200"}, query["blockEnd"])
	require.Equal(t, []string{"1700000000"}, query["timestampStart"])
	require.Equal(t, []string{"50"}, query["limit"])
	// zero values stay out of the query string
	require.NotContains(t, query, "timestampEnd")
	require.NotContains(t, query, "offset")
}

func TestGetEventHistoryNilParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newHistoryClient(server.URL, 5*time.Second)
	got, err := client.getEventHistory(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetEventHistoryInfo(t *testing.T) {
	info := HistoryInfo{
		Count:        1234,
		MinBlock:     100,
		MaxBlock:     200,
		MinTimestamp: 1700000000,
		MaxTimestamp: 1700001200,
		MaxLimit:     500,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, historyInfoPath, r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(info))
	}))
	defer server.Close()

	client := newHistoryClient(server.URL, 5*time.Second)
	got, err := client.getEventHistoryInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, info, *got)
}

func TestGetEventHistoryBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, fmt.Sprintf("limit above max %d", 500), http.StatusBadRequest)
	}))
	defer server.Close()

	client := newHistoryClient(server.URL, 5*time.Second)
	_, err := client.getEventHistory(context.Background(), &HistoryParams{Limit: 10_000})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "limit above max")
}
