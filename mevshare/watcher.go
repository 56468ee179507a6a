package mevshare

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/flashbots/mev-share-client/metrics"
)

var ErrLandingTimeout = errors.New("transaction did not land in time")

const (
	DefaultPollInterval   = time.Second
	DefaultLandingTimeout = 5 * time.Minute

	landedTxCacheTTL     = 5 * time.Minute
	landedTxCacheCleanup = time.Minute
)

// TxWatcher waits for referenced transactions to land on chain and fetches
// their revealed content. Watchers for distinct hashes are independent; a
// landed transaction is cached so repeated waits on the same hash do not hit
// the chain provider again.
type TxWatcher struct {
	log    *zap.Logger
	chain  ChainBackend
	landed *gocache.Cache
}

func NewTxWatcher(log *zap.Logger, chain ChainBackend) *TxWatcher {
	return &TxWatcher{
		log:    log.Named("watcher"),
		chain:  chain,
		landed: gocache.New(landedTxCacheTTL, landedTxCacheCleanup),
	}
}

// AwaitLanding polls the chain provider until the transaction is included in
// a block, then returns its full content. It fails with ErrLandingTimeout
// when the timeout elapses first and respects ctx cancellation throughout.
func (w *TxWatcher) AwaitLanding(ctx context.Context, hash common.Hash, pollInterval, timeout time.Duration) (*types.Transaction, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultLandingTimeout
	}
	if tx, ok := w.landed.Get(hash.Hex()); ok {
		return tx.(*types.Transaction), nil
	}
	metrics.IncLandingsAwaited()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := w.log.With(zap.String("tx", hash.Hex()))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		landed, err := w.checkLanded(ctx, hash)
		if err != nil && !errors.Is(err, ErrTxNotFound) {
			logger.Warn("Failed to query transaction receipt", zap.Error(err))
		}
		if landed {
			tx, err := w.fetchTx(ctx, hash)
			if err != nil {
				return nil, err
			}
			w.landed.Set(hash.Hex(), tx, gocache.DefaultExpiration)
			return tx, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				metrics.IncLandingTimeouts()
				logger.Debug("Gave up waiting for transaction to land")
				return nil, ErrLandingTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *TxWatcher) checkLanded(ctx context.Context, hash common.Hash) (bool, error) {
	receipt, err := w.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return false, err
	}
	return receipt != nil && receipt.BlockNumber != nil, nil
}

func (w *TxWatcher) fetchTx(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, err := w.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
