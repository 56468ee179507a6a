package mevshare

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ybbus/jsonrpc/v3"
)

var (
	ErrTxNotFound    = errors.New("transaction not found")
	ErrBlockNotFound = errors.New("block not found")
)

// ChainBackend supplies chain state to the landing watcher and the
// simulation resolver. It is an external collaborator, a standard Ethereum
// JSON-RPC provider.
type ChainBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
}

// JSONRPCChainBackend implements ChainBackend over a plain eth JSON-RPC
// endpoint.
type JSONRPCChainBackend struct {
	client jsonrpc.RPCClient
}

func NewJSONRPCChainBackend(url string) *JSONRPCChainBackend {
	return &JSONRPCChainBackend{
		client: jsonrpc.NewClient(url),
	}
}

func (b *JSONRPCChainBackend) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	err := b.client.CallFor(ctx, &result, "eth_blockNumber")
	return uint64(result), err
}

func (b *JSONRPCChainBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	arg := "latest"
	if number != nil {
		arg = hexutil.EncodeBig(number)
	}
	var header *types.Header
	err := b.client.CallFor(ctx, &header, "eth_getBlockByNumber", arg, false)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, ErrBlockNotFound
	}
	return header, nil
}

func (b *JSONRPCChainBackend) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	var header *types.Header
	err := b.client.CallFor(ctx, &header, "eth_getBlockByHash", hash, false)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, ErrBlockNotFound
	}
	return header, nil
}

func (b *JSONRPCChainBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := b.client.CallFor(ctx, &receipt, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrTxNotFound
	}
	return receipt, nil
}

func (b *JSONRPCChainBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var tx *types.Transaction
	err := b.client.CallFor(ctx, &tx, "eth_getTransactionByHash", hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTxNotFound
	}
	return tx, nil
}
