package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"farm-price-alerts/internal/realtime"
)

// EventSource is a realtime subscription as seen by the monitor.
type EventSource interface {
	Events() <-chan realtime.Event
	Close() error
}

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Stream is a websocket subscription to the per-user notification
// channel. One Stream owns exactly one live connection at a time;
// reconnecting replaces the connection instead of stacking a second
// subscription.
type Stream struct {
	url    string
	userID string
	events chan realtime.Event
	cancel context.CancelFunc
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// DialStream connects to the websocket endpoint and starts the receive
// loop. The initial dial must succeed; later drops reconnect with
// backoff until Close or context cancellation.
func DialStream(ctx context.Context, wsURL, userID string, logger zerolog.Logger) (*Stream, error) {
	s := &Stream{
		url:    wsURL,
		userID: userID,
		events: make(chan realtime.Event, 16),
		logger: logger.With().Str("component", "client_stream").Logger(),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.receiveLoop(loopCtx, conn)

	return s, nil
}

// Events exposes the delivery channel. It is closed when the stream is
// closed for good.
func (s *Stream) Events() <-chan realtime.Event {
	return s.events
}

// Close tears the subscription down: it cancels the receive loop and
// closes the live connection, which unblocks the pending read so the
// loop can exit and close the events channel. Safe to call twice.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// swapConn installs the connection from a redial. After Close the stream
// refuses the new connection so a racing redial cannot resurrect it.
func (s *Stream) swapConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-User-ID", s.userID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	return conn, err
}

func (s *Stream) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	defer close(s.events)

	for {
		err := s.receive(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Msg("stream disconnected")

		conn = s.redial(ctx)
		if conn == nil || !s.swapConn(conn) {
			return
		}
	}
}

// receive pumps events from one connection until it fails or the stream
// is closed.
func (s *Stream) receive(ctx context.Context, conn *websocket.Conn) error {
	for {
		event := realtime.Event{}
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		select {
		case s.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// redial reconnects with exponential backoff. It returns nil only when
// the stream is closed while waiting.
func (s *Stream) redial(ctx context.Context) *websocket.Conn {
	backoff := reconnectBase
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := s.dial(ctx)
		if err == nil {
			return conn
		}
		s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("stream reconnect failed")
		if backoff *= 2; backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}
