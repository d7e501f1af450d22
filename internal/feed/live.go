package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/kgrant/tickdata/internal/model"
)

// LiveConfig configures the live WebSocket source.
type LiveConfig struct {
	URL                string
	Symbols            []string
	MaxReconnects      int // Consecutive failed connects before giving up
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// LiveSource streams canonical events over a WebSocket connection,
// reconnecting with exponential backoff until the reconnect budget is
// exhausted.
type LiveSource struct {
	cfg    LiveConfig
	logger *slog.Logger
}

// NewLiveSource creates a live WebSocket source.
func NewLiveSource(cfg LiveConfig, logger *slog.Logger) *LiveSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSource{cfg: cfg, logger: logger}
}

func (s *LiveSource) Name() string { return "live" }

// Run connects and streams until the context is cancelled or reconnects are
// exhausted, in which case it returns a StreamError.
func (s *LiveSource) Run(ctx context.Context, out chan<- model.Event) error {
	bo := &backoff.Backoff{
		Min:    s.cfg.ReconnectBaseDelay,
		Max:    s.cfg.ReconnectMaxDelay,
		Factor: 2,
		Jitter: true,
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.streamOnce(ctx, out)
		if ctx.Err() != nil {
			return nil
		}

		failures++
		if failures > s.cfg.MaxReconnects {
			return &StreamError{Source: s.Name(), Err: fmt.Errorf("reconnect budget exhausted: %w", err)}
		}

		delay := bo.Duration()
		s.logger.Warn("live stream dropped, reconnecting",
			"attempt", failures,
			"max", s.cfg.MaxReconnects,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// streamOnce dials, subscribes, and reads until the connection fails.
func (s *LiveSource) streamOnce(ctx context.Context, out chan<- model.Event) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "symbols": s.cfg.Symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("live stream connected", "url", s.cfg.URL, "symbols", s.cfg.Symbols)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		receivedAt := time.Now().UTC()

		var wire wireEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			s.logger.Warn("skipping unparseable feed message", "error", err)
			continue
		}

		select {
		case out <- wire.toEvent(receivedAt):
		case <-ctx.Done():
			return nil
		}
	}
}
