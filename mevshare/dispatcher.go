package mevshare

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/flashbots/mev-share-client/metrics"
)

// StreamState is the connection state of the event dispatcher.
type StreamState int32

const (
	StateConnecting StreamState = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type (
	TxEventHandler     func(*TransactionEvent)
	BundleEventHandler func(*BundleEvent)
)

const listenerErrBuffer = 16

// eventDispatcher owns the long-lived stream goroutine. It classifies every
// frame and fans it out to the listener registries in registration order.
// Delivery is at-most-once per connection epoch: events missed while
// reconnecting are not replayed.
type eventDispatcher struct {
	log    *zap.Logger
	source EventSource
	url    string
	store  EventStore

	mu             sync.Mutex
	txListeners    []TxEventHandler
	bundleListener []BundleEventHandler

	state atomic.Int32
	errs  chan error

	// replaced in tests to avoid real reconnect delays
	newBackOff func() backoff.BackOff

	cancel context.CancelFunc
	done   chan struct{}
}

func newEventDispatcher(log *zap.Logger, source EventSource, url string, store EventStore) *eventDispatcher {
	return &eventDispatcher{
		log:        log.Named("stream"),
		source:     source,
		url:        url,
		store:      store,
		errs:       make(chan error, listenerErrBuffer),
		newBackOff: newReconnectBackoff,
		done:       make(chan struct{}),
	}
}

func (d *eventDispatcher) State() StreamState {
	return StreamState(d.state.Load())
}

func (d *eventDispatcher) setState(s StreamState) {
	d.state.Store(int32(s))
}

// Errors surfaces isolated listener failures and skipped frames. The channel
// is buffered and never blocks delivery; when nobody drains it, reports are
// dropped.
func (d *eventDispatcher) Errors() <-chan error {
	return d.errs
}

func (d *eventDispatcher) onTransaction(h TxEventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txListeners = append(d.txListeners, h)
}

func (d *eventDispatcher) onBundle(h BundleEventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundleListener = append(d.bundleListener, h)
}

func (d *eventDispatcher) start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.run(ctx)
}

// stop tears the stream down deterministically. It blocks until the stream
// goroutine has released the connection.
func (d *eventDispatcher) stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	d.setState(StateClosed)
}

func newReconnectBackoff() backoff.BackOff {
	back := backoff.NewExponentialBackOff()
	back.InitialInterval = time.Second
	back.MaxInterval = 30 * time.Second
	// the stream is long-lived, keep retrying until teardown
	back.MaxElapsedTime = 0
	return back
}

func (d *eventDispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.setState(StateClosed)

	back := d.newBackOff()
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := d.source.Subscribe(ctx, d.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.setState(StateReconnecting)
			metrics.IncStreamReconnects()
			wait := back.NextBackOff()
			d.log.Warn("Failed to subscribe to event stream", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		d.setState(StateConnected)
		back.Reset()
		d.log.Info("Event stream connected", zap.String("url", d.url))

		// not every source ties Next to the subscribe context, close the
		// stream explicitly on teardown so consume never blocks stop
		epochDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				stream.Close()
			case <-epochDone:
			}
		}()
		err = d.consume(ctx, stream)
		close(epochDone)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		d.setState(StateReconnecting)
		metrics.IncStreamReconnects()
		wait := back.NextBackOff()
		d.log.Warn("Event stream disconnected", zap.Error(err), zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (d *eventDispatcher) consume(ctx context.Context, stream FrameStream) error {
	for {
		frame, err := stream.Next()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		event, err := parseEvent(frame)
		if err != nil {
			// a malformed frame is skipped, the stream keeps running
			metrics.IncEventsMalformed()
			d.log.Warn("Skipping malformed event frame", zap.Error(err))
			d.report(err)
			continue
		}
		metrics.IncEventsReceived()
		d.dispatch(event)

		if d.store != nil {
			go func(event *Event) {
				if err := d.store.InsertEvent(context.Background(), event); err != nil {
					d.log.Error("Failed to persist event", zap.Error(err))
				}
			}(event)
		}
	}
}

// dispatch invokes listeners registered at the time of dispatch, in
// registration order. A failing listener never terminates the stream or
// blocks delivery to the others.
func (d *eventDispatcher) dispatch(event *Event) {
	switch event.Kind {
	case EventKindTransaction:
		d.mu.Lock()
		listeners := make([]TxEventHandler, len(d.txListeners))
		copy(listeners, d.txListeners)
		d.mu.Unlock()
		for _, h := range listeners {
			d.invoke(event, func() { h(event.Transaction) })
		}
	case EventKindBundle:
		d.mu.Lock()
		listeners := make([]BundleEventHandler, len(d.bundleListener))
		copy(listeners, d.bundleListener)
		d.mu.Unlock()
		for _, h := range listeners {
			d.invoke(event, func() { h(event.Bundle) })
		}
	}
}

func (d *eventDispatcher) invoke(event *Event, call func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("listener panic on %s event %s: %v", event.Kind, event.Hash().Hex(), r)
			d.log.Error("Event listener failed", zap.Error(err))
			d.report(err)
		}
	}()
	call()
}

func (d *eventDispatcher) report(err error) {
	select {
	case d.errs <- err:
	default:
	}
}
