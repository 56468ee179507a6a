package mevshare

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flashbots/mev-share-client/metrics"
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a protocol-level rejection returned by the Bundle API.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcClient builds, signs and sends Bundle API envelopes over an injected
// RPCTransport and decodes the results.
type rpcClient struct {
	log       *zap.Logger
	transport RPCTransport
	signer    RequestSigner
	url       string
	nextID    atomic.Uint64
}

func newRPCClient(log *zap.Logger, transport RPCTransport, signer RequestSigner, url string) *rpcClient {
	return &rpcClient{
		log:       log.Named("rpc"),
		transport: transport,
		signer:    signer,
		url:       url,
	}
}

// Call invokes a Bundle API method. A non-nil result is filled with the
// decoded result field; an error object in the response is returned as
// *RPCError.
func (c *rpcClient) Call(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	signature, err := c.signer.SignRequest(body)
	if err != nil {
		return err
	}

	resBody, err := c.transport.Send(ctx, c.url, body, map[string]string{SignatureHeader: signature})
	if err != nil {
		metrics.IncRPCCallFailure(method)
		return err
	}

	var res jsonRPCResponse
	if err := json.Unmarshal(resBody, &res); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if res.Error != nil {
		metrics.IncRPCCallFailure(method)
		c.log.Debug("Bundle API rejected call", zap.String("method", method), zap.Int("code", res.Error.Code), zap.String("message", res.Error.Message))
		return res.Error
	}
	if result != nil {
		if err := json.Unmarshal(res.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}
