package normalize

import (
	"errors"
	"testing"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

func unitOf(m types.Measurement) string {
	if m.Unit == nil {
		return "<nil>"
	}
	return *m.Unit
}

func TestNormalize_Rules(t *testing.T) {
	n := New(nil)
	tests := []struct {
		name      string
		label     types.AttributeKey
		raw       string
		wantValue string
		wantUnit  string
	}{
		{name: "timestamp passthrough", label: types.Timestamp, raw: "09/01/2024 08:00:00 AM", wantValue: "09/01/2024 08:00:00 AM", wantUnit: "<nil>"},
		{name: "timezone passthrough", label: types.Timezone, raw: "America/New_York", wantValue: "America/New_York", wantUnit: "<nil>"},
		{name: "humidity", label: types.RelativeHumidity, raw: "85 %", wantValue: "85", wantUnit: "%"},
		{name: "humidity no space", label: types.RelativeHumidity, raw: "62%", wantValue: "62", wantUnit: "%"},
		{name: "humidity without percent falls back", label: types.RelativeHumidity, raw: "62", wantValue: "62", wantUnit: "<nil>"},
		{name: "lightning distance km", label: types.LightningDistanceDetected, raw: "12 km", wantValue: "12", wantUnit: "km"},
		{name: "lightning distance mi", label: types.LightningDistanceDetected, raw: "7mi", wantValue: "7", wantUnit: "mi"},
		{name: "lightning distance too short", label: types.LightningDistanceDetected, raw: "--", wantValue: "--", wantUnit: "<nil>"},
		{name: "rain today inches", label: types.RainAccumulationToday, raw: `0.12"`, wantValue: "0.12", wantUnit: "inches"},
		{name: "rain today single quote", label: types.RainAccumulationToday, raw: `0.5 '`, wantValue: "0.5", wantUnit: "inches"},
		{name: "rain yesterday mm", label: types.RainAccumulationYesterday, raw: "3.2 mm", wantValue: "3.2", wantUnit: "mm"},
		{name: "rain no match defaults to inches", label: types.RainAccumulationToday, raw: `trace"`, wantValue: "trace", wantUnit: "inches"},
		{name: "wind direction degrees", label: types.WindDirection, raw: "270°", wantValue: "270", wantUnit: "°"},
		{name: "wind direction compass falls back", label: types.WindDirection, raw: "NW", wantValue: "NW", wantUnit: "<nil>"},
		{name: "generic inches", label: types.StationPressure, raw: `29.92"`, wantValue: "29.92", wantUnit: "inches"},
		{name: "generic mm", label: types.SolarRadiation, raw: "4 mm", wantValue: "4", wantUnit: "mm"},
		{name: "generic celsius", label: types.AirTemperature, raw: "21.5 °C", wantValue: "21.5", wantUnit: "°C"},
		{name: "generic space split", label: types.AirDensity, raw: "1.22 kg/m3", wantValue: "1.22", wantUnit: "kg/m3"},
		{name: "generic multi token unit", label: types.SolarRadiation, raw: "512 W / m²", wantValue: "512", wantUnit: "W / m²"},
		{name: "generic no unit", label: types.UVIndex, raw: "3", wantValue: "3", wantUnit: "<nil>"},
		{name: "generic trims", label: types.Brightness, raw: "  1200 lux ", wantValue: "1200", wantUnit: "lux"},
		{name: "rain intensity strips spaces", label: types.RainIntensity, raw: "0.02 in / hr", wantValue: "0.02", wantUnit: "in/hr"},
		{name: "rain intensity text", label: types.RainIntensity, raw: "none", wantValue: "none", wantUnit: "<nil>"},
		{name: "empty input", label: types.WindGust, raw: "", wantValue: "", wantUnit: "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.label, tt.raw)
			if got.Value != tt.wantValue {
				t.Errorf("Normalize(%q, %q).Value = %#v, want %q", tt.label, tt.raw, got.Value, tt.wantValue)
			}
			if unitOf(got) != tt.wantUnit {
				t.Errorf("Normalize(%q, %q).Unit = %q, want %q", tt.label, tt.raw, unitOf(got), tt.wantUnit)
			}
		})
	}
}

func TestNormalize_NeverPanicsForAnyKey(t *testing.T) {
	n := New(nil)
	inputs := []string{"", " ", "%", "°", `"`, "mm", "x", "12", "12 km", "-- --", "\x00\xff", "°C", `1'2"3`, "NNE"}
	keys := append([]types.AttributeKey{types.Timestamp, types.Timezone, "unknown_label"}, types.AttributeKeys...)
	for _, k := range keys {
		for _, in := range inputs {
			got := n.Normalize(k, in)
			if _, ok := got.Value.(string); !ok {
				t.Errorf("Normalize(%q, %q).Value = %#v, want a string", k, in, got.Value)
			}
		}
	}
}

func TestWindSpeedToMps(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: "10", want: 2.78},
		{in: "10 km/h", want: 2.78},
		{in: "0", want: 0.0},
		{in: "36", want: 10.0},
		{in: "abc", want: "abc"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := WindSpeedToMps(tt.in); got != tt.want {
				t.Errorf("WindSpeedToMps(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompassToDegrees(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{in: "N", want: f(0)},
		{in: "NNE", want: f(22.5)},
		{in: "E", want: f(90)},
		{in: "SSW", want: f(202.5)},
		{in: "NW", want: f(315)},
		{in: "NNW", want: f(337.5)},
		{in: "XX", want: nil},
		{in: "n", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CompassToDegrees(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("CompassToDegrees(%q) = %v, want nil", tt.in, *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("CompassToDegrees(%q) = %v, want %v", tt.in, got, *tt.want)
			}
		})
	}
}

func f(v float64) *float64 { return &v }

func TestTimestampToUnixMs(t *testing.T) {
	got := TimestampToUnixMs("09/01/2024 08:00:00 AM", "America/New_York")
	if got == nil {
		t.Fatal("TimestampToUnixMs returned nil")
	}
	// 08:00 EDT is 12:00 UTC.
	if *got != 1725192000000 {
		t.Errorf("TimestampToUnixMs = %d, want 1725192000000", *got)
	}
	again := TimestampToUnixMs("09/01/2024 08:00:00 AM", "America/New_York")
	if again == nil || *again != *got {
		t.Errorf("TimestampToUnixMs not reproducible: %v vs %d", again, *got)
	}

	pm := TimestampToUnixMs("09/01/2024 08:00:00 PM", "America/New_York")
	if pm == nil || *pm-*got != 12*3600*1000 {
		t.Errorf("PM timestamp = %v, want 12h after AM", pm)
	}
}

func TestTimestampToUnixMs_Failures(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		tz   string
	}{
		{name: "invalid zone", ts: "09/01/2024 08:00:00 AM", tz: "Mars/Olympus_Mons"},
		{name: "empty zone", ts: "09/01/2024 08:00:00 AM", tz: ""},
		{name: "bad layout", ts: "2024-09-01 08:00", tz: "America/New_York"},
		{name: "empty timestamp", ts: "", tz: "America/New_York"},
		{name: "spring forward gap", ts: "03/10/2024 02:30:00 AM", tz: "America/New_York"},
		{name: "fall back overlap", ts: "11/03/2024 01:30:00 AM", tz: "America/New_York"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimestampToUnixMs(tt.ts, tt.tz); got != nil {
				t.Errorf("TimestampToUnixMs(%q, %q) = %d, want nil", tt.ts, tt.tz, *got)
			}
		})
	}
}

func TestParseLocalTimestamp_DSTErrors(t *testing.T) {
	_, err := ParseLocalTimestamp("03/10/2024 02:30:00 AM", "America/New_York")
	if !errors.Is(err, ErrNonexistentTime) {
		t.Errorf("gap: err = %v, want ErrNonexistentTime", err)
	}
	_, err = ParseLocalTimestamp("11/03/2024 01:30:00 AM", "America/New_York")
	if !errors.Is(err, ErrAmbiguousTime) {
		t.Errorf("overlap: err = %v, want ErrAmbiguousTime", err)
	}
}
