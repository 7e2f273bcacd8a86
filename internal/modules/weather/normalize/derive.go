package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	kmhToMps = 0.27778

	// TimestampLayout is the station page's local observation time format.
	TimestampLayout = "01/02/2006 03:04:05 PM"
)

var (
	ErrAmbiguousTime   = errors.New("local time is ambiguous in zone")
	ErrNonexistentTime = errors.New("local time does not exist in zone")
)

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindSpeedToMps converts the leading number of raw (km/h) to m/s rounded to two decimals.
// When raw does not start with a number it is returned unchanged.
func WindSpeedToMps(raw string) any {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return raw
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return raw
	}
	return round2(f * kmhToMps)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// CompassToDegrees maps a 16-point compass abbreviation to degrees clockwise from north.
func CompassToDegrees(dir string) *float64 {
	for i, p := range compassPoints {
		if p == dir {
			d := float64(i) * 22.5
			return &d
		}
	}
	return nil
}

// ParseLocalTimestamp interprets ts as wall-clock time in the IANA zone tz.
// Times that fall in a DST gap or overlap are rejected.
func ParseLocalTimestamp(ts, tz string) (time.Time, error) {
	if strings.TrimSpace(tz) == "" {
		return time.Time{}, errors.New("timezone is empty")
	}
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return time.Time{}, fmt.Errorf("load location %q: %w", tz, err)
	}
	wall, err := time.Parse(TimestampLayout, strings.TrimSpace(ts))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}

	// Candidate instants: the wall time read with each offset in force around it.
	_, offBefore := wall.Add(-24 * time.Hour).In(loc).Zone()
	_, offAfter := wall.Add(24 * time.Hour).In(loc).Zone()
	var matches []time.Time
	for _, off := range uniqueOffsets(offBefore, offAfter, wall, loc) {
		cand := wall.Add(-time.Duration(off) * time.Second).In(loc)
		if sameWall(cand, wall) && !containsInstant(matches, cand) {
			matches = append(matches, cand)
		}
	}
	switch len(matches) {
	case 0:
		return time.Time{}, fmt.Errorf("%s in %s: %w", ts, tz, ErrNonexistentTime)
	case 1:
		return matches[0], nil
	default:
		return time.Time{}, fmt.Errorf("%s in %s: %w", ts, tz, ErrAmbiguousTime)
	}
}

func uniqueOffsets(a, b int, wall time.Time, loc *time.Location) []int {
	_, own := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, loc).Zone()
	out := []int{own}
	for _, o := range []int{a, b} {
		dup := false
		for _, x := range out {
			if x == o {
				dup = true
			}
		}
		if !dup {
			out = append(out, o)
		}
	}
	return out
}

func sameWall(t, wall time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := wall.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute() && t.Second() == wall.Second()
}

func containsInstant(ts []time.Time, t time.Time) bool {
	for _, x := range ts {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

// TimestampToUnixMs returns milliseconds since the epoch for ts in zone tz, or nil on any failure.
func TimestampToUnixMs(ts, tz string) *int64 {
	t, err := ParseLocalTimestamp(ts, tz)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
