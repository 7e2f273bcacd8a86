package record

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/douginoz/iceicedata/internal/modules/weather/types"
)

func sampleObservations() []types.RawObservation {
	return []types.RawObservation{
		{Label: "Air Temperature", Value: "21.5 °C"},
		{Label: "relative_humidity", Value: "64 %"},
		{Label: "Wind Speed", Value: "10 km/h"},
		{Label: "Wind Direction", Value: "NW"},
		{Label: "Rain Accumulation Today", Value: `0.12"`},
		{Label: "Rain Intensity", Value: "0.02 in / hr"},
		{Label: "Lightning Distance Detected", Value: "12 km"},
		{Label: "Timestamp", Value: "09/01/2024 08:00:00 AM"},
		{Label: "Timezone", Value: "America/New_York"},
		{Label: "Battery Voltage", Value: "2.61 V"},
	}
}

func TestBuild_AllKeysPresentWithoutObservations(t *testing.T) {
	rec, wind := NewBuilder(nil).Build(Station{ID: "1234", Name: "Backyard"}, nil)

	if len(rec.Attributes) != len(types.AttributeKeys) {
		t.Fatalf("len(Attributes) = %d, want %d", len(rec.Attributes), len(types.AttributeKeys))
	}
	for _, k := range types.AttributeKeys {
		m, ok := rec.Attributes[k]
		if !ok {
			t.Errorf("key %q missing", k)
			continue
		}
		if m.Value != nil || m.Unit != nil {
			t.Errorf("key %q = %#v, want unobserved", k, m)
		}
		if m.Description == nil || *m.Description != types.Description(k) {
			t.Errorf("key %q description = %v, want %q", k, m.Description, types.Description(k))
		}
	}
	if rec.TimestampUnixMs != nil {
		t.Errorf("TimestampUnixMs = %d, want nil", *rec.TimestampUnixMs)
	}
	if wind.SpeedMps != nil || wind.DirectionDeg != nil {
		t.Errorf("wind = %+v, want empty", wind)
	}
}

func TestBuild_PopulatesKnownLabels(t *testing.T) {
	rec, wind := NewBuilder(nil).Build(Station{ID: "1234", Name: "Backyard"}, sampleObservations())

	if rec.StationID != "1234" || rec.StationName != "Backyard" {
		t.Errorf("station = %q/%q", rec.StationID, rec.StationName)
	}
	if got := rec.Attributes[types.AirTemperature]; got.Value != "21.5" || got.UnitString() != "°C" {
		t.Errorf("air_temperature = %#v", got)
	}
	if got := rec.Attributes[types.RainIntensity]; got.UnitString() != "in/hr" {
		t.Errorf("rain_intensity unit = %q, want in/hr", got.UnitString())
	}
	if got := rec.Attributes[types.RainAccumulationToday]; got.Value != "0.12" || got.UnitString() != "inches" {
		t.Errorf("rain_accumulation_today = %#v", got)
	}
	if got := rec.Attributes[types.AirTemperature].Description; got == nil || *got != types.Description(types.AirTemperature) {
		t.Errorf("description lost after normalization: %v", got)
	}
	if _, ok := rec.Attributes["battery_voltage"]; ok {
		t.Error("unknown label should not be stored")
	}
	if rec.TimestampUnixMs == nil || *rec.TimestampUnixMs != 1725192000000 {
		t.Errorf("TimestampUnixMs = %v, want 1725192000000", rec.TimestampUnixMs)
	}
	if wind.SpeedMps == nil || *wind.SpeedMps != 2.78 {
		t.Errorf("wind speed = %v, want 2.78", wind.SpeedMps)
	}
	if wind.DirectionDeg == nil || *wind.DirectionDeg != 315 {
		t.Errorf("wind direction = %v, want 315", wind.DirectionDeg)
	}
}

func TestBuild_NumericWindDirection(t *testing.T) {
	_, wind := NewBuilder(nil).Build(Station{ID: "1"}, []types.RawObservation{
		{Label: "wind_direction", Value: "270°"},
		{Label: "wind_speed", Value: "calm"},
	})
	if wind.DirectionDeg == nil || *wind.DirectionDeg != 270 {
		t.Errorf("direction = %v, want 270", wind.DirectionDeg)
	}
	if wind.SpeedMps != nil {
		t.Errorf("speed = %v, want nil for non-numeric input", *wind.SpeedMps)
	}
}

func TestBuild_InvalidTimezoneIsSoftFailure(t *testing.T) {
	rec, _ := NewBuilder(nil).Build(Station{ID: "1"}, []types.RawObservation{
		{Label: "timestamp", Value: "09/01/2024 08:00:00 AM"},
		{Label: "timezone", Value: "Nowhere/Special"},
		{Label: "uv_index", Value: "3"},
	})
	if rec.TimestampUnixMs != nil {
		t.Errorf("TimestampUnixMs = %d, want nil", *rec.TimestampUnixMs)
	}
	if rec.Attributes[types.UVIndex].Value != "3" {
		t.Errorf("uv_index = %#v, want 3", rec.Attributes[types.UVIndex].Value)
	}
	if rec.Timezone.Value != "Nowhere/Special" {
		t.Errorf("timezone = %#v", rec.Timezone.Value)
	}
}

func TestBuild_JSONRoundTrip(t *testing.T) {
	rec, _ := NewBuilder(nil).Build(Station{ID: "1234", Name: "Backyard"}, sampleObservations())

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back types.Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Attributes, rec.Attributes) {
		t.Errorf("attribute map changed in round trip:\n got %#v\nwant %#v", back.Attributes, rec.Attributes)
	}
	if back.StationID != rec.StationID || back.StationName != rec.StationName {
		t.Errorf("station = %q/%q", back.StationID, back.StationName)
	}
	if back.TimestampUnixMs == nil || *back.TimestampUnixMs != *rec.TimestampUnixMs {
		t.Errorf("TimestampUnixMs = %v, want %d", back.TimestampUnixMs, *rec.TimestampUnixMs)
	}
	if !reflect.DeepEqual(back.Timestamp, rec.Timestamp) {
		t.Errorf("timestamp = %#v, want %#v", back.Timestamp, rec.Timestamp)
	}
}

func TestBuild_JSONShape(t *testing.T) {
	rec, _ := NewBuilder(nil).Build(Station{ID: "7", Name: "Pier"}, nil)
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["station_id"] != "7" || generic["station_name"] != "Pier" {
		t.Errorf("top-level station fields = %v / %v", generic["station_id"], generic["station_name"])
	}
	for _, k := range append([]types.AttributeKey{types.Timestamp, types.Timezone, types.TimestampUnix}, types.AttributeKeys...) {
		obj, ok := generic[string(k)].(map[string]any)
		if !ok {
			t.Errorf("key %q missing or not an object", k)
			continue
		}
		for _, field := range []string{"value", "unit", "description"} {
			if _, ok := obj[field]; !ok {
				t.Errorf("%s.%s missing", k, field)
			}
		}
	}
}
