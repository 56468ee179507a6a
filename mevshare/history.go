package mevshare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	historyPath     = "/api/v1/history"
	historyInfoPath = "/api/v1/history/info"
)

// HistoryParams are the optional query parameters of the history endpoint.
// Zero values are omitted from the query string.
type HistoryParams struct {
	BlockStart     uint64
	BlockEnd       uint64
	TimestampStart int64
	TimestampEnd   int64
	Limit          uint64
	Offset         uint64
}

func (p *HistoryParams) query() string {
	if p == nil {
		return ""
	}
	values := url.Values{}
	if p.BlockStart != 0 {
		values.Set("blockStart", strconv.FormatUint(p.BlockStart, 10))
	}
	if p.BlockEnd != 0 {
		values.Set("blockEnd", strconv.FormatUint(p.BlockEnd, 10))
	}
	if p.TimestampStart != 0 {
		values.Set("timestampStart", strconv.FormatInt(p.TimestampStart, 10))
	}
	if p.TimestampEnd != 0 {
		values.Set("timestampEnd", strconv.FormatInt(p.TimestampEnd, 10))
	}
	if p.Limit != 0 {
		values.Set("limit", strconv.FormatUint(p.Limit, 10))
	}
	if p.Offset != 0 {
		values.Set("offset", strconv.FormatUint(p.Offset, 10))
	}
	return values.Encode()
}

// HistoryEntry is one hint as it was published on the stream.
type HistoryEntry struct {
	Block     uint64 `json:"block"`
	Timestamp int64  `json:"timestamp"`
	Hint      Hint   `json:"hint"`
}

// HistoryInfo describes the range served by the history endpoint.
type HistoryInfo struct {
	Count        uint64 `json:"count"`
	MinBlock     uint64 `json:"minBlock"`
	MaxBlock     uint64 `json:"maxBlock"`
	MinTimestamp int64  `json:"minTimestamp"`
	MaxTimestamp int64  `json:"maxTimestamp"`
	MaxLimit     uint64 `json:"maxLimit"`
}

type historyClient struct {
	client  *http.Client
	baseURL string
}

func newHistoryClient(baseURL string, timeout time.Duration) *historyClient {
	return &historyClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (h *historyClient) getEventHistory(ctx context.Context, params *HistoryParams) ([]HistoryEntry, error) {
	endpoint := h.baseURL + historyPath
	if q := params.query(); q != "" {
		endpoint += "?" + q
	}
	var entries []HistoryEntry
	if err := h.getJSON(ctx, endpoint, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (h *historyClient) getEventHistoryInfo(ctx context.Context) (*HistoryInfo, error) {
	var info HistoryInfo
	if err := h.getJSON(ctx, h.baseURL+historyInfoPath, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *historyClient) getJSON(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &HTTPStatusError{StatusCode: res.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal history response: %w", err)
	}
	return nil
}
