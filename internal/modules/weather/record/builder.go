// Package record assembles canonical station records from raw page observations.
package record

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/douginoz/iceicedata/internal/modules/weather/normalize"
	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

// Station identifies the station a set of observations belongs to.
type Station struct {
	ID   string
	Name string
}

type Builder struct {
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{normalizer: normalize.New(logger), logger: logger}
}

// Build returns a record holding every known attribute key, plus the wind vector derived
// from the raw wind observations. Unknown labels are dropped.
func (b *Builder) Build(station Station, obs []types.RawObservation) (types.Record, types.WindVector) {
	rec := types.Record{
		StationID:   station.ID,
		StationName: station.Name,
		Timestamp:   types.Empty(types.Timestamp),
		Timezone:    types.Empty(types.Timezone),
		Attributes:  make(map[types.AttributeKey]types.Measurement, len(types.AttributeKeys)),
	}
	for _, k := range types.AttributeKeys {
		rec.Attributes[k] = types.Empty(k)
	}

	var wind types.WindVector
	for _, o := range obs {
		key := types.KeyFromLabel(o.Label)
		m := b.normalizer.Normalize(key, o.Value)

		switch {
		case key == types.Timestamp:
			m.Description = rec.Timestamp.Description
			rec.Timestamp = m
		case key == types.Timezone:
			m.Description = rec.Timezone.Description
			rec.Timezone = m
		case types.IsAttribute(key):
			m.Description = rec.Attributes[key].Description
			rec.Attributes[key] = m
		default:
			b.logger.Debug("ignoring unknown label", "station_id", station.ID, "label", o.Label)
			continue
		}

		switch key {
		case types.WindSpeed:
			if mps, ok := normalize.WindSpeedToMps(o.Value).(float64); ok {
				wind.SpeedMps = &mps
			}
		case types.WindDirection:
			wind.DirectionDeg = directionDegrees(m)
		}
	}

	ts, _ := rec.Timestamp.Value.(string)
	tz, _ := rec.Timezone.Value.(string)
	if ts == "" || tz == "" {
		b.logger.Warn("timestamp or timezone is missing", "station_id", station.ID)
		return rec, wind
	}
	t, err := normalize.ParseLocalTimestamp(ts, tz)
	if err != nil {
		b.logger.Warn("could not derive unix timestamp",
			"station_id", station.ID,
			"timestamp", ts,
			"timezone", tz,
			"error", err,
		)
		return rec, wind
	}
	ms := t.UnixMilli()
	rec.TimestampUnixMs = &ms
	return rec, wind
}

func directionDegrees(m types.Measurement) *float64 {
	s, _ := m.Value.(string)
	if d, err := strconv.ParseFloat(s, 64); err == nil {
		return &d
	}
	return normalize.CompassToDegrees(strings.ToUpper(strings.TrimSpace(s)))
}
