package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// ReplayConfig configures the bounded historical replay source.
type ReplayConfig struct {
	URL      string // History endpoint returning a JSON array of events
	Symbols  []string
	Window   time.Duration  // How far back the replay reaches
	DataType model.DataType // Drives the inter-message pacing
}

// ReplaySource re-delivers a bounded historical range of canonical events,
// pacing messages by the data type's frequency class so downstream timing
// behavior resembles the live feed.
type ReplaySource struct {
	cfg        ReplayConfig
	httpClient *http.Client
	logger     *slog.Logger

	// delay is swappable for tests.
	delay time.Duration
}

// NewReplaySource creates a bounded replay source.
func NewReplaySource(cfg ReplayConfig, logger *slog.Logger) *ReplaySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplaySource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		delay:      ReplayDelay(cfg.DataType),
	}
}

func (s *ReplaySource) Name() string { return "replay" }

// Run fetches the historical range per symbol and emits it paced. Returns
// nil once the bounded range is exhausted (the replay is a stopgap, not an
// endless feed).
func (s *ReplaySource) Run(ctx context.Context, out chan<- model.Event) error {
	to := time.Now().UTC()
	from := to.Add(-s.cfg.Window)

	total := 0
	for _, symbol := range s.cfg.Symbols {
		events, err := s.fetch(ctx, symbol, from, to)
		if err != nil {
			return &StreamError{Source: s.Name(), Err: err}
		}

		s.logger.Info("replaying historical range",
			"symbol", symbol,
			"from", from,
			"to", to,
			"events", len(events),
			"delay", s.delay,
		)

		for _, wire := range events {
			select {
			case out <- wire.toEvent(time.Now().UTC()):
				total++
			case <-ctx.Done():
				return nil
			}

			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil
			}
		}
	}

	s.logger.Info("replay range exhausted", "events", total)
	return nil
}

func (s *ReplaySource) fetch(ctx context.Context, symbol string, from, to time.Time) ([]wireEvent, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", strconv.FormatInt(from.UnixMicro(), 10))
	q.Set("to", strconv.FormatInt(to.UnixMicro(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("history endpoint status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var events []wireEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return events, nil
}
