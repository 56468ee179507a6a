package mevshare

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flashbots/mev-share-client/metrics"
)

var (
	ErrNoSigner         = errors.New("request signer is not configured")
	ErrNoChainBackend   = errors.New("chain backend is not configured")
	ErrClientClosed     = errors.New("client is closed")
	ErrMissingBundleDef = errors.New("bundle is nil")
)

const (
	defaultRPCTimeout   = 30 * time.Second
	defaultSimRateLimit = rate.Limit(5)
)

// Config carries the construction parameters of the client. It is read once
// by New; the client never mutates it afterwards.
type Config struct {
	// Signer authenticates every Bundle API call. Required.
	Signer RequestSigner

	// Network selects endpoint defaults; mainnet when zero.
	Network Network
	// APIURL and StreamURL override the network endpoints when set.
	APIURL    string
	StreamURL string

	// EthBackendURL points at a standard Ethereum JSON-RPC provider used by
	// the landing watcher and simulation defaults. Ignored when ChainBackend
	// is set; when both are empty, hash-only bundles cannot be simulated.
	EthBackendURL string
	ChainBackend  ChainBackend

	// Transport and EventSource replace the default HTTPS implementations.
	Transport   RPCTransport
	EventSource EventSource

	// EventStore, when set, archives every delivered stream event.
	EventStore EventStore

	// SimRateLimit bounds mev_simBundle calls per second; defaults to 5.
	SimRateLimit rate.Limit

	// Landing watcher tuning; zero values select 1s / 5min.
	PollInterval   time.Duration
	LandingTimeout time.Duration

	// RPCTimeout bounds a single Bundle API round trip; defaults to 30s.
	RPCTimeout time.Duration
}

// Client is the composition root of the library. Request/response calls and
// the event stream are independent: RPC calls can run concurrently with each
// other and with event delivery.
type Client struct {
	log *zap.Logger

	rpc        *rpcClient
	chain      ChainBackend
	watcher    *TxWatcher
	resolver   *bundleResolver
	dispatcher *eventDispatcher
	history    *historyClient

	simRateLimiter *rate.Limiter

	rootCtx    context.Context
	rootCancel context.CancelFunc
	streamOnce sync.Once
	closeOnce  sync.Once
}

func New(log *zap.Logger, config Config) (*Client, error) {
	if config.Signer == nil {
		return nil, ErrNoSigner
	}

	network := config.Network
	if network.Name == "" {
		network = NetworkMainnet
	}
	apiURL := network.APIURL
	if config.APIURL != "" {
		apiURL = config.APIURL
	}
	streamURL := network.StreamURL
	if config.StreamURL != "" {
		streamURL = config.StreamURL
	}

	rpcTimeout := config.RPCTimeout
	if rpcTimeout <= 0 {
		rpcTimeout = defaultRPCTimeout
	}
	transport := config.Transport
	if transport == nil {
		transport = NewHTTPTransport(rpcTimeout)
	}
	source := config.EventSource
	if source == nil {
		source = NewHTTPEventSource()
	}
	chain := config.ChainBackend
	if chain == nil && config.EthBackendURL != "" {
		chain = NewJSONRPCChainBackend(config.EthBackendURL)
	}
	simRateLimit := config.SimRateLimit
	if simRateLimit <= 0 {
		simRateLimit = defaultSimRateLimit
	}

	c := &Client{
		log:            log,
		rpc:            newRPCClient(log, transport, config.Signer, apiURL),
		chain:          chain,
		dispatcher:     newEventDispatcher(log, source, streamURL, config.EventStore),
		history:        newHistoryClient(streamURL, rpcTimeout),
		simRateLimiter: rate.NewLimiter(simRateLimit, 1),
	}
	if chain != nil {
		c.watcher = NewTxWatcher(log, chain)
		c.resolver = newBundleResolver(log, c.watcher, config.PollInterval, config.LandingTimeout)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c, nil
}

// OnTransaction registers a listener for pending-transaction events.
// The stream subscription starts lazily on the first registration;
// registering after the stream is running is valid and takes effect for
// subsequent events.
func (c *Client) OnTransaction(h TxEventHandler) {
	c.dispatcher.onTransaction(h)
	c.ensureStream()
}

// OnBundle registers a listener for bundle events.
func (c *Client) OnBundle(h BundleEventHandler) {
	c.dispatcher.onBundle(h)
	c.ensureStream()
}

// StreamErrors surfaces isolated listener failures and skipped frames.
func (c *Client) StreamErrors() <-chan error {
	return c.dispatcher.Errors()
}

func (c *Client) StreamState() StreamState {
	return c.dispatcher.State()
}

func (c *Client) ensureStream() {
	c.streamOnce.Do(func() {
		c.dispatcher.start(c.rootCtx)
	})
}

// SendBundle submits a bundle to the Bundle API.
func (c *Client) SendBundle(ctx context.Context, bundle *SendMevBundleArgs) (_ *SendMevBundleResponse, err error) {
	startAt := time.Now()
	defer func() {
		metrics.RecordRPCCallDuration(SendBundleEndpointName, time.Since(startAt).Milliseconds())
	}()
	if bundle == nil {
		return nil, ErrMissingBundleDef
	}
	if bundle.Version == "" {
		bundle.Version = BundleVersion
	}

	ctx, cancel, err := c.boundCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var response SendMevBundleResponse
	if err := c.rpc.Call(ctx, &response, SendBundleEndpointName, bundle); err != nil {
		return nil, err
	}
	return &response, nil
}

// SimulateBundle simulates a bundle. Hash-only body entries are first
// rewritten to the revealed transactions via the landing watcher; unset
// simulation overrides are derived from the parent block header. A bundle
// whose referenced transactions never land is not simulated at all.
func (c *Client) SimulateBundle(ctx context.Context, bundle *SendMevBundleArgs, aux *SimMevBundleAuxArgs) (_ *SimMevBundleResponse, err error) {
	startAt := time.Now()
	defer func() {
		metrics.RecordRPCCallDuration(SimBundleEndpointName, time.Since(startAt).Milliseconds())
	}()
	if bundle == nil {
		return nil, ErrMissingBundleDef
	}
	if c.chain == nil {
		return nil, ErrNoChainBackend
	}

	ctx, cancel, err := c.boundCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := c.simRateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	resolved, err := c.resolver.Resolve(ctx, bundle)
	if err != nil {
		return nil, err
	}
	if resolved.Version == "" {
		resolved.Version = BundleVersion
	}
	auxFilled, err := fillSimDefaults(ctx, c.chain, aux)
	if err != nil {
		return nil, err
	}

	var response SimMevBundleResponse
	if err := c.rpc.Call(ctx, &response, SimBundleEndpointName, resolved, auxFilled); err != nil {
		return nil, err
	}
	return &response, nil
}

// SendPrivateTransaction posts a raw transaction with hint, builder and
// max-block preferences to the Bundle API.
func (c *Client) SendPrivateTransaction(ctx context.Context, args *SendPrivateTxArgs) (_ common.Hash, err error) {
	startAt := time.Now()
	defer func() {
		metrics.RecordRPCCallDuration(SendPrivateTxEndpointName, time.Since(startAt).Milliseconds())
	}()

	ctx, cancel, err := c.boundCtx(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer cancel()

	var txHash common.Hash
	if err := c.rpc.Call(ctx, &txHash, SendPrivateTxEndpointName, args); err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

// GetEventHistory queries past hints from the Event API.
func (c *Client) GetEventHistory(ctx context.Context, params *HistoryParams) ([]HistoryEntry, error) {
	ctx, cancel, err := c.boundCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.history.getEventHistory(ctx, params)
}

func (c *Client) GetEventHistoryInfo(ctx context.Context) (*HistoryInfo, error) {
	ctx, cancel, err := c.boundCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.history.getEventHistoryInfo(ctx)
}

// Close releases the stream connection and cancels in-flight landing
// watchers. It is idempotent; the client cannot be reused afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.rootCancel()
		// make sure stop does not hang when the stream never started
		c.ensureStream()
		c.dispatcher.stop()
	})
	return nil
}

// boundCtx ties a call context to the client lifetime so Close cancels
// in-flight operations. It fails with ErrClientClosed after Close.
func (c *Client) boundCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.rootCtx.Err() != nil {
		return nil, nil, ErrClientClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.rootCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel, nil
}
