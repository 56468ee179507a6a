package mevshare

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// DefaultSimTimeoutSeconds is the mev_simBundle timeout applied when the
// caller leaves it unset.
const DefaultSimTimeoutSeconds = int64(5)

const blockTimeSeconds = 12

// bundleResolver rewrites hash-only bundle body entries into literal
// transactions so the bundle can be simulated. The Bundle API rejects
// unmatched bundles outright: simulating them would leak what the sender
// chose to hide, so the rewrite happens only after the referenced
// transactions have landed on chain.
type bundleResolver struct {
	log          *zap.Logger
	watcher      *TxWatcher
	pollInterval time.Duration
	timeout      time.Duration
}

func newBundleResolver(log *zap.Logger, watcher *TxWatcher, pollInterval, timeout time.Duration) *bundleResolver {
	return &bundleResolver{
		log:          log.Named("resolver"),
		watcher:      watcher,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Resolve returns a copy of the bundle with every hash-only entry replaced by
// {tx, canRevert: false}. Entries resolve in parallel and the result is
// reassembled in original body order. If any referenced hash never lands the
// whole resolution fails; a partially resolved bundle is never returned.
func (r *bundleResolver) Resolve(ctx context.Context, bundle *SendMevBundleArgs) (*SendMevBundleArgs, error) {
	resolved := make([]MevBundleBody, len(bundle.Body))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for i, entry := range bundle.Body {
		switch {
		case entry.Hash != nil:
			wg.Add(1)
			go func(i int, hash common.Hash) {
				defer wg.Done()
				body, err := r.resolveHashEntry(ctx, hash)
				if err != nil {
					fail(err)
					return
				}
				resolved[i] = body
			}(i, *entry.Hash)
		case entry.Bundle != nil:
			wg.Add(1)
			go func(i int, entry MevBundleBody) {
				defer wg.Done()
				inner, err := r.Resolve(ctx, entry.Bundle)
				if err != nil {
					fail(err)
					return
				}
				entry.Bundle = inner
				resolved[i] = entry
			}(i, entry)
		default:
			resolved[i] = entry
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := *bundle
	out.Body = resolved
	return &out, nil
}

func (r *bundleResolver) resolveHashEntry(ctx context.Context, hash common.Hash) (MevBundleBody, error) {
	tx, err := r.watcher.AwaitLanding(ctx, hash, r.pollInterval, r.timeout)
	if err != nil {
		return MevBundleBody{}, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return MevBundleBody{}, err
	}
	r.log.Debug("Resolved hash-only bundle entry", zap.String("tx", hash.Hex()))
	txBytes := hexutil.Bytes(raw)
	return MevBundleBody{Tx: &txBytes, CanRevert: false}, nil
}

// fillSimDefaults derives unset simulation overrides from the parent block
// header: blockNumber = parent+1, timestamp = parent+12, coinbase, gasLimit
// and baseFee inherited, timeout 5 seconds.
func fillSimDefaults(ctx context.Context, chain ChainBackend, aux *SimMevBundleAuxArgs) (*SimMevBundleAuxArgs, error) {
	out := SimMevBundleAuxArgs{}
	if aux != nil {
		out = *aux
	}
	if out.Timeout == nil {
		timeout := DefaultSimTimeoutSeconds
		out.Timeout = &timeout
	}
	if out.BlockNumber != nil && out.Coinbase != nil && out.Timestamp != nil && out.GasLimit != nil && out.BaseFee != nil {
		return &out, nil
	}

	parent, err := parentHeader(ctx, chain, out.ParentBlock)
	if err != nil {
		return nil, err
	}
	if out.BlockNumber == nil {
		next := new(big.Int).Add(parent.Number, big.NewInt(1))
		out.BlockNumber = (*hexutil.Big)(next)
	}
	if out.Coinbase == nil {
		coinbase := parent.Coinbase
		out.Coinbase = &coinbase
	}
	if out.Timestamp == nil {
		timestamp := hexutil.Uint64(parent.Time + blockTimeSeconds)
		out.Timestamp = &timestamp
	}
	if out.GasLimit == nil {
		gasLimit := hexutil.Uint64(parent.GasLimit)
		out.GasLimit = &gasLimit
	}
	if out.BaseFee == nil && parent.BaseFee != nil {
		out.BaseFee = (*hexutil.Big)(new(big.Int).Set(parent.BaseFee))
	}
	return &out, nil
}

func parentHeader(ctx context.Context, chain ChainBackend, parent *rpc.BlockNumberOrHash) (*types.Header, error) {
	if parent == nil {
		return chain.HeaderByNumber(ctx, nil)
	}
	if hash, ok := parent.Hash(); ok {
		return chain.HeaderByHash(ctx, hash)
	}
	if number, ok := parent.Number(); ok {
		if number < 0 {
			// latest, pending and friends
			return chain.HeaderByNumber(ctx, nil)
		}
		return chain.HeaderByNumber(ctx, big.NewInt(number.Int64()))
	}
	return chain.HeaderByNumber(ctx, nil)
}
