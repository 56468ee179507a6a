package mevshare

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStreamClosed    = errors.New("event stream closed")
	ErrStreamBadStatus = errors.New("event stream endpoint returned non-success status")
)

// EventSource produces a lazy, restartable sequence of raw push-protocol
// frames. Every Subscribe call opens a fresh connection; the dispatcher
// resubscribes after connection loss.
type EventSource interface {
	Subscribe(ctx context.Context, url string) (FrameStream, error)
}

// FrameStream is one open connection. Next blocks until a frame arrives and
// returns an error once the connection is lost or closed.
type FrameStream interface {
	Next() ([]byte, error)
	Close() error
}

// HTTPEventSource reads server-sent events from an HTTPS endpoint.
// Frames follow SSE record framing: payloads on "data:" lines, comment lines
// (keep-alive pings) and blank record separators are skipped.
type HTTPEventSource struct {
	client *http.Client
}

func NewHTTPEventSource() *HTTPEventSource {
	// no client timeout, the connection is long-lived
	return &HTTPEventSource{client: &http.Client{}}
}

func (s *HTTPEventSource) Subscribe(ctx context.Context, url string) (FrameStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, ErrStreamBadStatus
	}
	return &sseFrameStream{body: res.Body, reader: bufio.NewReader(res.Body)}, nil
}

type sseFrameStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

var dataPrefix = []byte("data:")

func (s *sseFrameStream) Next() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, dataPrefix) {
			// blank separators and ":ping" comments
			continue
		}
		return bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix)), nil
	}
}

func (s *sseFrameStream) Close() error {
	return s.body.Close()
}

// RedisEventSource subscribes to the hint pub/sub channel directly instead of
// going through the SSE fan-out. The url argument of Subscribe is a redis URL.
type RedisEventSource struct {
	channel string
}

func NewRedisEventSource(channel string) *RedisEventSource {
	return &RedisEventSource{channel: channel}
}

func (s *RedisEventSource) Subscribe(ctx context.Context, url string) (FrameStream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pubsub := client.Subscribe(ctx, s.channel)
	// force the subscription so connection errors surface here, not in Next
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, err
	}
	return &redisFrameStream{client: client, pubsub: pubsub, ch: pubsub.Channel()}, nil
}

type redisFrameStream struct {
	client *redis.Client
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

func (s *redisFrameStream) Next() ([]byte, error) {
	msg, ok := <-s.ch
	if !ok {
		return nil, ErrStreamClosed
	}
	return []byte(msg.Payload), nil
}

func (s *redisFrameStream) Close() error {
	err := s.pubsub.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
