// Package extractor fetches raw station observations from the page-extraction
// service. Rendering the station page is that service's job; this package only
// speaks its JSON API.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

// ErrExtraction wraps every failure to obtain a station snapshot.
var ErrExtraction = errors.New("extraction failed")

var (
	errNotFound    = errors.New("station not found")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
)

// Snapshot is the raw content of one station page.
type Snapshot struct {
	StationID    string                 `json:"station_id"`
	StationName  string                 `json:"station_name"`
	Observations []types.RawObservation `json:"observations"`
}

type Extractor interface {
	Extract(ctx context.Context, stationID string) (Snapshot, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, stationID string) (Snapshot, error)

func (f Func) Extract(ctx context.Context, stationID string) (Snapshot, error) {
	return f(ctx, stationID)
}

type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type HTTPExtractor struct {
	baseURL string
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTP returns an extractor for the service at baseURL. Each call is bounded by timeout.
func NewHTTP(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         "extractor",
		MaxRequests:  5,
		Interval:     1 * time.Minute,
		Timeout:      2 * time.Minute,
		IsSuccessful: serviceHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &HTTPExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
		logger:  logger,
	}
}

// WithBackoff replaces the retry policy.
func (e *HTTPExtractor) WithBackoff(b BackoffConfig) *HTTPExtractor {
	e.backoff = b
	return e
}

func (e *HTTPExtractor) Extract(ctx context.Context, stationID string) (Snapshot, error) {
	u := fmt.Sprintf("%s/stations/%s", e.baseURL, url.PathEscape(stationID))

	body, err := e.fetch(ctx, u)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: station %s: %w", ErrExtraction, stationID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: station %s: decode: %w", ErrExtraction, stationID, err)
	}
	if snap.StationID == "" {
		snap.StationID = stationID
	}
	if strings.TrimLeft(snap.StationID, "0") != strings.TrimLeft(stationID, "0") {
		return Snapshot{}, fmt.Errorf("%w: station %s: service returned station %s", ErrExtraction, stationID, snap.StationID)
	}
	snap.StationID = stationID

	e.logger.Debug("extracted station page",
		"station_id", stationID,
		"station_name", snap.StationName,
		"observations", len(snap.Observations),
	)
	return snap, nil
}

// fetch runs the whole retry sequence as one circuit breaker call, so a
// station produces a single outcome however many attempts it took.
func (e *HTTPExtractor) fetch(ctx context.Context, u string) ([]byte, error) {
	result, err := e.circuit.Execute(func() (interface{}, error) {
		return e.fetchWithRetry(ctx, u)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("circuit breaker open: %w", err)
	}
	if err != nil {
		return nil, err
	}
	body, ok := result.([]byte)
	if !ok {
		return nil, errors.New("unexpected result type from circuit breaker")
	}
	return body, nil
}

// fetchWithRetry retries transport and 5xx failures with exponential backoff.
func (e *HTTPExtractor) fetchWithRetry(ctx context.Context, u string) ([]byte, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := e.get(ctx, u)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || attempt >= e.backoff.MaxRetries {
			return nil, err
		}

		delay := e.backoff.InitialInterval << attempt
		if e.backoff.MaxInterval > 0 && delay > e.backoff.MaxInterval {
			delay = e.backoff.MaxInterval
		}
		e.logger.Debug("retrying extraction", "url", u, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

func (e *HTTPExtractor) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// serviceHealthy reports whether err leaves the breaker's view of the service
// intact. Unknown stations and rejected requests are answers about one
// station; cancellation is the caller's doing.
func serviceHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, errNotFound) ||
		errors.Is(err, errUnexpected) ||
		errors.Is(err, context.Canceled)
}

func retryable(err error) bool {
	return !errors.Is(err, errNotFound) && !errors.Is(err, errUnexpected) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
