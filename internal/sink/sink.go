// Package sink delivers a station record to every configured output. Sinks run
// in a fixed order and a failing sink never prevents the others from running.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

const (
	NameFile       = "file"
	NameMQTT       = "mqtt"
	NameRelational = "relational"
)

// ErrSkipped marks a delivery that was intentionally not performed, such as a
// duplicate record. It is reported as Result.Skipped, not as a failure.
var ErrSkipped = errors.New("skipped")

type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec types.Record, wind types.WindVector) error
}

type Result struct {
	Sink     string        `json:"sink"`
	Err      error         `json:"-"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the sink delivered (or deliberately skipped) the record.
func (r Result) OK() bool { return r.Err == nil }

type Results []Result

// Failed returns the results that carry an error.
func (rs Results) Failed() Results {
	var out Results
	for _, r := range rs {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

var order = map[string]int{NameFile: 0, NameMQTT: 1, NameRelational: 2}

// NewDispatcher keeps the given sinks sorted file, mqtt, relational; unknown
// sink names run last in the order given.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := make([]Sink, 0, len(sinks))
	for rank := 0; rank <= len(order); rank++ {
		for _, s := range sinks {
			if s == nil {
				continue
			}
			r, known := order[s.Name()]
			if !known {
				r = len(order)
			}
			if r == rank {
				sorted = append(sorted, s)
			}
		}
	}
	return &Dispatcher{sinks: sorted, logger: logger}
}

// Sinks returns the configured sink names in dispatch order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch hands rec to every sink and reports one Result per sink. It never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, rec types.Record, wind types.WindVector) Results {
	results := make(Results, 0, len(d.sinks))
	for _, s := range d.sinks {
		res := d.deliver(ctx, s, rec, wind)
		switch {
		case res.Err != nil:
			d.logger.Warn("sink failed",
				"sink", res.Sink,
				"station_id", rec.StationID,
				"duration", res.Duration,
				"error", res.Err,
			)
		case res.Skipped:
			d.logger.Info("sink skipped", "sink", res.Sink, "station_id", rec.StationID)
		default:
			d.logger.Debug("sink delivered", "sink", res.Sink, "station_id", rec.StationID, "duration", res.Duration)
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, rec types.Record, wind types.WindVector) (res Result) {
	res.Sink = s.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic in %s sink: %v", res.Sink, p)
		}
		res.Duration = time.Since(start)
	}()

	err := s.Deliver(ctx, rec, wind)
	if errors.Is(err, ErrSkipped) {
		res.Skipped = true
		return res
	}
	res.Err = err
	return res
}
