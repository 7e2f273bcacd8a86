// Package normalize turns the display strings of a station page into typed measurements.
//
// Unit detection is heuristic: a quote means inches, "mm" means millimetres, a degree sign
// followed by C means Celsius, and anything else is split on whitespace. Parsing never fails;
// values that cannot be interpreted are passed through unchanged with no unit.
package normalize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

var rainAccumulationRe = regexp.MustCompile(`^([\d.]+)\s*(["']|mm)`)

type Normalizer struct {
	logger *slog.Logger
}

// New returns a Normalizer logging fallbacks to logger (slog.Default when nil).
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize splits raw into a value and a unit using the rules for label.
// The returned Measurement carries no description.
func (n *Normalizer) Normalize(label types.AttributeKey, raw string) (m types.Measurement) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("normalize fallback", "label", label, "raw", raw, "panic", fmt.Sprint(r))
			m = types.Measurement{Value: raw}
		}
	}()

	value := strings.TrimSpace(raw)

	var (
		v    string
		unit *string
		ok   bool
	)
	switch label {
	case types.Timestamp, types.Timezone:
		return types.Measurement{Value: value}
	case types.RelativeHumidity:
		v, unit, ok = splitHumidity(value)
	case types.LightningDistanceDetected:
		v, unit, ok = splitTrailingUnit(value)
	case types.RainAccumulationToday, types.RainAccumulationYesterday:
		v, unit, ok = splitRainAccumulation(value), ptr("inches"), true
		if m := rainAccumulationRe.FindStringSubmatch(value); m != nil {
			v = m[1]
			if m[2] == "mm" {
				unit = ptr("mm")
			}
		}
	case types.WindDirection:
		v, unit, ok = splitDegrees(value)
	}
	if !ok {
		if label == types.RelativeHumidity || label == types.LightningDistanceDetected || label == types.WindDirection {
			n.logger.Debug("normalize fallback to generic rule", "label", label, "raw", raw)
		}
		v, unit = splitGeneric(value)
	}

	if label == types.RainIntensity && unit != nil {
		unit = ptr(strings.ReplaceAll(*unit, " ", ""))
	}
	return types.Measurement{Value: v, Unit: unit}
}

func splitHumidity(value string) (string, *string, bool) {
	before, _, found := strings.Cut(value, "%")
	if !found {
		return "", nil, false
	}
	return strings.TrimSpace(before), ptr("%"), true
}

// splitTrailingUnit treats the last two characters as the unit.
func splitTrailingUnit(value string) (string, *string, bool) {
	r := []rune(value)
	if len(r) < 3 {
		return "", nil, false
	}
	v := strings.TrimSpace(string(r[:len(r)-2]))
	if v == "" {
		return "", nil, false
	}
	return v, ptr(string(r[len(r)-2:])), true
}

func splitRainAccumulation(value string) string {
	return strings.TrimRight(value, `"`)
}

func splitDegrees(value string) (string, *string, bool) {
	before, _, found := strings.Cut(value, "°")
	if !found {
		return "", nil, false
	}
	return strings.TrimSpace(before), ptr("°"), true
}

func splitGeneric(value string) (string, *string) {
	switch {
	case strings.ContainsAny(value, `"'`):
		i := strings.IndexAny(value, `"'`)
		return strings.TrimSpace(value[:i]), ptr("inches")
	case strings.Contains(value, "mm"):
		before, _, _ := strings.Cut(value, "mm")
		return strings.TrimSpace(before), ptr("mm")
	case strings.Contains(value, "°") && strings.Contains(value, "C"):
		before, _, _ := strings.Cut(value, "°")
		return strings.TrimSpace(before), ptr("°C")
	}
	fields := strings.Fields(value)
	switch len(fields) {
	case 0:
		return value, nil
	case 1:
		return fields[0], nil
	}
	return fields[0], ptr(strings.Join(fields[1:], " "))
}

func ptr(s string) *string { return &s }
