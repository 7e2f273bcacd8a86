package httpapi

import (
	"sync"
	"time"

	"github.com/douginoz/iceicedata/internal/scheduler"
)

type SinkStatus struct {
	Sink       string `json:"sink"`
	OK         bool   `json:"ok"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type StationStatus struct {
	StationID   string       `json:"station_id"`
	StationName string       `json:"station_name,omitempty"`
	Cycle       int          `json:"cycle"`
	LastAttempt time.Time    `json:"last_attempt"`
	LastSuccess time.Time    `json:"last_success,omitzero"`
	Error       string       `json:"error,omitempty"`
	Sinks       []SinkStatus `json:"sinks,omitempty"`
}

// Tracker keeps the latest outcome per station. Observe is meant to be used as
// the scheduler's OnCycle hook.
type Tracker struct {
	mu       sync.RWMutex
	order    []string
	stations map[string]StationStatus
}

func NewTracker() *Tracker {
	return &Tracker{stations: make(map[string]StationStatus)}
}

func (t *Tracker) Observe(r scheduler.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.stations[r.StationID]
	if !seen {
		t.order = append(t.order, r.StationID)
	}

	st := StationStatus{
		StationID:   r.StationID,
		StationName: r.StationName,
		Cycle:       r.Cycle,
		LastAttempt: r.At,
		LastSuccess: prev.LastSuccess,
	}
	if st.StationName == "" {
		st.StationName = prev.StationName
	}
	if r.Err != nil {
		st.Error = r.Err.Error()
	}

	allOK := r.Err == nil
	for _, res := range r.Results {
		ss := SinkStatus{
			Sink:       res.Sink,
			OK:         res.Err == nil,
			Skipped:    res.Skipped,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			ss.Error = res.Err.Error()
			allOK = false
		}
		st.Sinks = append(st.Sinks, ss)
	}
	if allOK {
		st.LastSuccess = r.At
	}
	t.stations[r.StationID] = st
}

// Snapshot returns stations in the order they were first seen.
func (t *Tracker) Snapshot() []StationStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]StationStatus, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.stations[id])
	}
	return out
}
