// Package scheduler runs capture cycles: every configured station in order,
// then an optional sleep before the next cycle.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/douginoz/iceicedata/internal/extractor"
	"github.com/douginoz/iceicedata/internal/modules/weather/record"
	"github.com/douginoz/iceicedata/internal/modules/weather/types"
	"github.com/douginoz/iceicedata/internal/sink"
)

type State string

const (
	StateIdle        State = "idle"
	StateCapturing   State = "capturing"
	StateNormalizing State = "normalizing"
	StateDispatching State = "dispatching"
	StateNextStation State = "next_station"
	StateSleeping    State = "sleeping"
	StateDone        State = "done"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, rec types.Record, wind types.WindVector) sink.Results
}

// Report describes how one station fared within a cycle.
type Report struct {
	Cycle       int
	StationID   string
	StationName string
	At          time.Time
	// Err is set when the station page could not be extracted; Results is then empty.
	Err     error
	Results sink.Results
}

type Options struct {
	Stations []string
	// Interval is the sleep after each cycle ends; zero runs a single cycle.
	Interval       time.Duration
	ExtractTimeout time.Duration
	// Console receives the human progress lines; nil discards them.
	Console io.Writer
	OnCycle func(Report)
}

// Status is a point-in-time view for the status endpoint.
type Status struct {
	State     State     `json:"state"`
	Cycle     int       `json:"cycle"`
	StationID string    `json:"station_id,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitzero"`
}

type Scheduler struct {
	extractor  extractor.Extractor
	builder    *record.Builder
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger

	mu     sync.RWMutex
	status Status
}

func New(ex extractor.Extractor, builder *record.Builder, d Dispatcher, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = 60 * time.Second
	}
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	return &Scheduler{
		extractor:  ex,
		builder:    builder,
		dispatcher: d,
		opts:       opts,
		logger:     logger,
		status:     Status{State: StateIdle},
	}
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.State
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Scheduler) set(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Scheduler) setState(st State, stationID string) {
	s.set(func(v *Status) {
		v.State = st
		v.StationID = stationID
	})
}

// Run blocks until the single cycle finishes (returning nil) or ctx is
// cancelled (returning ctx.Err()).
func (s *Scheduler) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		s.set(func(v *Status) {
			v.Cycle = cycle
			v.NextRunAt = time.Time{}
		})
		started := time.Now()
		s.logger.Info("cycle started", "cycle", cycle, "stations", len(s.opts.Stations))

		for _, id := range s.opts.Stations {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.captureStation(ctx, cycle, id); err != nil {
				return err
			}
			s.setState(StateNextStation, "")
		}

		s.logger.Info("cycle finished", "cycle", cycle, "duration", time.Since(started))
		if s.opts.Interval <= 0 {
			s.setState(StateDone, "")
			return nil
		}

		next := time.Now().Add(s.opts.Interval)
		s.set(func(v *Status) {
			v.State = StateSleeping
			v.StationID = ""
			v.NextRunAt = next
		})
		s.logger.Info("sleeping until next cycle", "interval", s.opts.Interval, "next_run_at", next)

		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// captureStation only returns an error when ctx is cancelled; every other
// failure is logged and reported through OnCycle.
func (s *Scheduler) captureStation(ctx context.Context, cycle int, id string) error {
	report := Report{Cycle: cycle, StationID: id, At: time.Now()}
	defer func() {
		if s.opts.OnCycle != nil {
			s.opts.OnCycle(report)
		}
	}()

	s.setState(StateCapturing, id)
	fmt.Fprintf(s.opts.Console, "Looking for station %s - ", id)

	exCtx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
	snap, err := s.extractor.Extract(exCtx, id)
	cancel()
	if err != nil {
		fmt.Fprintln(s.opts.Console, "not found.")
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Err = ctxErr
			return ctxErr
		}
		s.logger.Warn("station extraction failed", "station_id", id, "error", err)
		report.Err = err
		return nil
	}
	fmt.Fprintf(s.opts.Console, "found. Station Name: %s\n", snap.StationName)
	report.StationName = snap.StationName

	s.setState(StateNormalizing, id)
	rec, wind := s.builder.Build(record.Station{ID: id, Name: snap.StationName}, snap.Observations)

	s.setState(StateDispatching, id)
	report.Results = s.dispatcher.Dispatch(ctx, rec, wind)
	return nil
}
