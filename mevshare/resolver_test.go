package mevshare

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(backend ChainBackend, timeout time.Duration) *bundleResolver {
	watcher := NewTxWatcher(zap.NewNop(), backend)
	return newBundleResolver(zap.NewNop(), watcher, 10*time.Millisecond, timeout)
}

func hashRef(hash common.Hash) MevBundleBody {
	return MevBundleBody{Hash: &hash}
}

func txLiteral(raw []byte, canRevert bool) MevBundleBody {
	txBytes := hexutil.Bytes(raw)
	return MevBundleBody{Tx: &txBytes, CanRevert: canRevert}
}

func TestResolveHashEntry(t *testing.T) {
	backend := newFakeChainBackend()
	tx := randomSignedTx(t)
	backend.addTx(tx, 2)

	bundle := &SendMevBundleArgs{
		Version: BundleVersion,
		Body:    []MevBundleBody{hashRef(tx.Hash())},
	}

	resolver := newTestResolver(backend, 5*time.Second)
	resolved, err := resolver.Resolve(context.Background(), bundle)
	require.NoError(t, err)

	// the hash reference becomes a literal transaction that must not revert
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, resolved.Body, 1)
	require.Nil(t, resolved.Body[0].Hash)
	require.NotNil(t, resolved.Body[0].Tx)
	require.Equal(t, hexutil.Bytes(raw), *resolved.Body[0].Tx)
	require.False(t, resolved.Body[0].CanRevert)

	// the input bundle is left untouched
	require.NotNil(t, bundle.Body[0].Hash)
}

func TestResolvePreservesOrder(t *testing.T) {
	backend := newFakeChainBackend()
	tx1 := randomSignedTx(t)
	tx2 := randomSignedTx(t)
	tx3 := randomSignedTx(t)
	backend.addTx(tx1, 2)
	backend.addTx(tx2, 0)
	backend.addTx(tx3, 1)

	literal := txLiteral([]byte{0xde, 0xad}, true)
	bundle := &SendMevBundleArgs{
		Version: BundleVersion,
		Body: []MevBundleBody{
			hashRef(tx1.Hash()),
			literal,
			hashRef(tx2.Hash()),
			{Bundle: &SendMevBundleArgs{
				Version: BundleVersion,
				Body:    []MevBundleBody{hashRef(tx3.Hash())},
			}},
		},
	}

	resolver := newTestResolver(backend, 5*time.Second)
	resolved, err := resolver.Resolve(context.Background(), bundle)
	require.NoError(t, err)
	require.Len(t, resolved.Body, 4)

	raw1, _ := tx1.MarshalBinary()
	raw2, _ := tx2.MarshalBinary()
	raw3, _ := tx3.MarshalBinary()

	require.Equal(t, hexutil.Bytes(raw1), *resolved.Body[0].Tx)
	require.Equal(t, literal, resolved.Body[1])
	require.Equal(t, hexutil.Bytes(raw2), *resolved.Body[2].Tx)

	require.NotNil(t, resolved.Body[3].Bundle)
	require.Equal(t, hexutil.Bytes(raw3), *resolved.Body[3].Bundle.Body[0].Tx)
	require.False(t, resolved.Body[3].Bundle.Body[0].CanRevert)
}

func TestResolveTimeout(t *testing.T) {
	backend := newFakeChainBackend()
	neverLands := common.HexToHash("0xdead")

	bundle := &SendMevBundleArgs{
		Version: BundleVersion,
		Body:    []MevBundleBody{hashRef(neverLands)},
	}

	resolver := newTestResolver(backend, 100*time.Millisecond)
	resolved, err := resolver.Resolve(context.Background(), bundle)
	require.ErrorIs(t, err, ErrLandingTimeout)
	require.Nil(t, resolved)
}

func TestResolveAllOrNothing(t *testing.T) {
	backend := newFakeChainBackend()
	tx := randomSignedTx(t)
	backend.addTx(tx, 0)
	neverLands := common.HexToHash("0xdead")

	bundle := &SendMevBundleArgs{
		Version: BundleVersion,
		Body: []MevBundleBody{
			hashRef(tx.Hash()),
			hashRef(neverLands),
		},
	}

	resolver := newTestResolver(backend, 100*time.Millisecond)
	resolved, err := resolver.Resolve(context.Background(), bundle)
	require.ErrorIs(t, err, ErrLandingTimeout)
	require.Nil(t, resolved)
}

func TestFillSimDefaults(t *testing.T) {
	backend := newFakeChainBackend()

	aux, err := fillSimDefaults(context.Background(), backend, nil)
	require.NoError(t, err)

	parent := backend.header
	require.Equal(t, new(big.Int).Add(parent.Number, big.NewInt(1)), (*big.Int)(aux.BlockNumber))
	require.Equal(t, parent.Coinbase, *aux.Coinbase)
	require.Equal(t, hexutil.Uint64(parent.Time+12), *aux.Timestamp)
	require.Equal(t, hexutil.Uint64(parent.GasLimit), *aux.GasLimit)
	require.Equal(t, parent.BaseFee, (*big.Int)(aux.BaseFee))
	require.Equal(t, DefaultSimTimeoutSeconds, *aux.Timeout)
}

func TestFillSimDefaultsKeepsOverrides(t *testing.T) {
	blockNumber := (*hexutil.Big)(big.NewInt(200))
	coinbase := common.HexToAddress("0x01")
	timestamp := hexutil.Uint64(42)
	gasLimit := hexutil.Uint64(10_000_000)
	baseFee := (*hexutil.Big)(big.NewInt(7))
	timeout := int64(9)

	// everything is set, the chain provider must not be consulted
	aux, err := fillSimDefaults(context.Background(), nil, &SimMevBundleAuxArgs{
		BlockNumber: blockNumber,
		Coinbase:    &coinbase,
		Timestamp:   &timestamp,
		GasLimit:    &gasLimit,
		BaseFee:     baseFee,
		Timeout:     &timeout,
	})
	require.NoError(t, err)
	require.Equal(t, blockNumber, aux.BlockNumber)
	require.Equal(t, coinbase, *aux.Coinbase)
	require.Equal(t, timestamp, *aux.Timestamp)
	require.Equal(t, gasLimit, *aux.GasLimit)
	require.Equal(t, baseFee, aux.BaseFee)
	require.Equal(t, timeout, *aux.Timeout)
}
