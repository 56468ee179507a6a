package mevshare

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sseTestServer serves one SSE connection at a time. Frames pushed via emit
// are written to the currently connected client; drop closes the current
// connection so the dispatcher has to reconnect.
type sseTestServer struct {
	server *httptest.Server
	frames chan string
	drops  chan struct{}
}

func newSSETestServer(t *testing.T) *sseTestServer {
	t.Helper()
	s := &sseTestServer{
		frames: make(chan string),
		drops:  make(chan struct{}),
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case frame := <-s.frames:
				fmt.Fprintf(w, "data: %s\n\n", frame)
				flusher.Flush()
			case <-s.drops:
				return
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *sseTestServer) emit(t *testing.T, frame string) {
	t.Helper()
	select {
	case s.frames <- frame:
	case <-time.After(5 * time.Second):
		t.Fatal("no client connected to receive frame")
	}
}

func (s *sseTestServer) drop(t *testing.T) {
	t.Helper()
	select {
	case s.drops <- struct{}{}:
	case <-time.After(5 * time.Second):
		t.Fatal("no client connected to drop")
	}
}

func newTestDispatcher(t *testing.T, url string) *eventDispatcher {
	t.Helper()
	d := newEventDispatcher(zap.NewNop(), NewHTTPEventSource(), url, nil)
	d.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}
	return d
}

func txFrame(hash common.Hash) string {
	return fmt.Sprintf(`{"hash":"%s"}`, hash.Hex())
}

func bundleFrame(hash common.Hash) string {
	return fmt.Sprintf(`{"hash":"%s","txs":[{"hash":"%s"}]}`, hash.Hex(), hash.Hex())
}

func receiveHash(t *testing.T, ch <-chan common.Hash) common.Hash {
	t.Helper()
	select {
	case hash := <-ch:
		return hash
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event delivery")
		return common.Hash{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan common.Hash) {
	t.Helper()
	select {
	case hash := <-ch:
		t.Fatalf("unexpected event delivery: %s", hash.Hex())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherListenerRegistration(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)

	early := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { early <- event.Hash })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)
	defer dispatcher.stop()

	hash1 := common.HexToHash("0x01")
	server.emit(t, txFrame(hash1))
	require.Equal(t, hash1, receiveHash(t, early))

	// a listener registered after the stream started receives subsequent
	// events, not buffered past ones
	late := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { late <- event.Hash })

	hash2 := common.HexToHash("0x02")
	server.emit(t, txFrame(hash2))
	require.Equal(t, hash2, receiveHash(t, early))
	require.Equal(t, hash2, receiveHash(t, late))
	requireNoEvent(t, late)
}

func TestDispatcherClassifiesPerKind(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)

	txs := make(chan common.Hash, 8)
	bundles := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { txs <- event.Hash })
	dispatcher.onBundle(func(event *BundleEvent) { bundles <- event.Hash })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)
	defer dispatcher.stop()

	txHash := common.HexToHash("0x0a")
	bundleHash := common.HexToHash("0x0b")
	server.emit(t, txFrame(txHash))
	server.emit(t, bundleFrame(bundleHash))

	require.Equal(t, txHash, receiveHash(t, txs))
	require.Equal(t, bundleHash, receiveHash(t, bundles))
	requireNoEvent(t, txs)
	requireNoEvent(t, bundles)
}

func TestDispatcherReconnects(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)

	received := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { received <- event.Hash })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)
	defer dispatcher.stop()

	hash1 := common.HexToHash("0x01")
	server.emit(t, txFrame(hash1))
	require.Equal(t, hash1, receiveHash(t, received))

	// forced disconnect mid-stream; the dispatcher resubscribes and resumes
	// delivery without re-emitting already delivered events
	server.drop(t)

	hash2 := common.HexToHash("0x02")
	server.emit(t, txFrame(hash2))
	require.Equal(t, hash2, receiveHash(t, received))
	requireNoEvent(t, received)
}

func TestDispatcherSkipsMalformedFrames(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)

	received := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { received <- event.Hash })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)
	defer dispatcher.stop()

	server.emit(t, `{"hash":`)
	hash := common.HexToHash("0x01")
	server.emit(t, txFrame(hash))

	// the malformed frame is skipped, the stream keeps running
	require.Equal(t, hash, receiveHash(t, received))

	select {
	case err := <-dispatcher.Errors():
		require.ErrorIs(t, err, ErrMalformedEvent)
	case <-time.After(time.Second):
		t.Fatal("expected a stream error report")
	}
}

func TestDispatcherIsolatesListenerPanics(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)

	received := make(chan common.Hash, 8)
	dispatcher.onTransaction(func(event *TransactionEvent) { panic("listener bug") })
	dispatcher.onTransaction(func(event *TransactionEvent) { received <- event.Hash })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)
	defer dispatcher.stop()

	hash := common.HexToHash("0x01")
	server.emit(t, txFrame(hash))

	// the second listener still gets the event, the failure is reported
	require.Equal(t, hash, receiveHash(t, received))
	select {
	case err := <-dispatcher.Errors():
		require.Contains(t, err.Error(), "listener panic")
	case <-time.After(time.Second):
		t.Fatal("expected a listener failure report")
	}
}

func TestDispatcherStop(t *testing.T) {
	server := newSSETestServer(t)
	dispatcher := newTestDispatcher(t, server.server.URL)
	dispatcher.onTransaction(func(event *TransactionEvent) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.start(ctx)

	server.emit(t, txFrame(common.HexToHash("0x01")))
	dispatcher.stop()
	require.Equal(t, StateClosed, dispatcher.State())
}
