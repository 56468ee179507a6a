package mevshare

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCTransport sends a signed request body to a Bundle API endpoint and
// returns the raw response body. The JSON-RPC layer sits above this boundary
// so the wire protocol can be swapped without touching call sites.
type RPCTransport interface {
	Send(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error)
}

// HTTPStatusError is returned by HTTPTransport for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d: %s", e.StatusCode, e.Body)
}

type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(resBody)}
	}
	return resBody, nil
}
