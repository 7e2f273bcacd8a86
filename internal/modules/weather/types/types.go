package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AttributeKey names one observed quantity of a station snapshot.
type AttributeKey string

const (
	AirDensity                 AttributeKey = "air_density"
	AirTemperature             AttributeKey = "air_temperature"
	StationPressure            AttributeKey = "station_pressure"
	Brightness                 AttributeKey = "brightness"
	DeltaT                     AttributeKey = "delta_t"
	DewPoint                   AttributeKey = "dew_point"
	FeelsLike                  AttributeKey = "feels_like"
	HeatIndex                  AttributeKey = "heat_index"
	LightningStrikeCount       AttributeKey = "lightning_strike_count"
	LightningDetectedLast3Hrs  AttributeKey = "lightning_detected_last_3_hrs"
	LightningDistanceDetected  AttributeKey = "lightning_distance_detected"
	LightningLastDetected      AttributeKey = "lightning_last_detected"
	RainIntensity              AttributeKey = "rain_intensity"
	RainAccumulationToday      AttributeKey = "rain_accumulation_today"
	RainAccumulationYesterday  AttributeKey = "rain_accumulation_yesterday"
	RainDurationToday          AttributeKey = "rain_duration_today"
	RainDurationYesterday      AttributeKey = "rain_duration_yesterday"
	RelativeHumidity           AttributeKey = "relative_humidity"
	SeaLevelPressure           AttributeKey = "sea_level_pressure"
	SolarRadiation             AttributeKey = "solar_radiation"
	UVIndex                    AttributeKey = "uv_index"
	WetBulbTemperature         AttributeKey = "wet_bulb_temperature"
	WindSpeed                  AttributeKey = "wind_speed"
	WindChill                  AttributeKey = "wind_chill"
	WindDirection              AttributeKey = "wind_direction"
	WindGust                   AttributeKey = "wind_gust"
	WindLull                   AttributeKey = "wind_lull"

	// Record-level keys. They are carried outside Attributes but share the label namespace.
	Timestamp     AttributeKey = "timestamp"
	Timezone      AttributeKey = "timezone"
	TimestampUnix AttributeKey = "timestamp_unix"
)

// AttributeKeys is the fixed attribute set in schema order.
var AttributeKeys = []AttributeKey{
	AirDensity, AirTemperature, StationPressure, Brightness, DeltaT, DewPoint, FeelsLike,
	HeatIndex, LightningStrikeCount, LightningDetectedLast3Hrs, LightningDistanceDetected,
	LightningLastDetected, RainIntensity, RainAccumulationToday, RainAccumulationYesterday,
	RainDurationToday, RainDurationYesterday, RelativeHumidity, SeaLevelPressure, SolarRadiation,
	UVIndex, WetBulbTemperature, WindSpeed, WindChill, WindDirection, WindGust, WindLull,
}

var descriptions = map[AttributeKey]string{
	AirDensity:                "The mass of air per unit volume.",
	AirTemperature:            "The temperature of the air.",
	StationPressure:           "The atmospheric pressure at the station.",
	Brightness:                "The intensity of light.",
	DeltaT:                    "The difference between air temperature and dew point.",
	DewPoint:                  "The temperature at which air becomes saturated with moisture.",
	FeelsLike:                 "The apparent temperature considering humidity and wind.",
	HeatIndex:                 "The perceived temperature due to air temperature and humidity.",
	LightningStrikeCount:      "The number of lightning strikes detected.",
	LightningDetectedLast3Hrs: "The number of lightning strikes detected in the last 3 hours.",
	LightningDistanceDetected: "The estimated distance of detected lightning strikes.",
	LightningLastDetected:     "The time since the last lightning strike was detected.",
	RainIntensity:             "The rate of rainfall.",
	RainAccumulationToday:     "The total rainfall accumulated today.",
	RainAccumulationYesterday: "The total rainfall accumulated yesterday.",
	RainDurationToday:         "The duration of rainfall today.",
	RainDurationYesterday:     "The duration of rainfall yesterday.",
	RelativeHumidity:          "The percentage of moisture in the air relative to saturation.",
	SeaLevelPressure:          "The atmospheric pressure adjusted to sea level.",
	SolarRadiation:            "The power per unit area received from the Sun.",
	UVIndex:                   "The ultraviolet index indicating the level of UV radiation.",
	WetBulbTemperature:        "The lowest temperature air can reach by evaporative cooling.",
	WindSpeed:                 "The speed of the wind.",
	WindChill:                 "The perceived decrease in air temperature felt by the body.",
	WindDirection:             "The direction from which the wind is blowing.",
	WindGust:                  "The peak wind speed during a short time interval.",
	WindLull:                  "The minimum wind speed during a short time interval.",
	Timestamp:                 "The date and time of the observation.",
	Timezone:                  "The timezone of the observation.",
	TimestampUnix:             "The timestamp in Unix time format.",
}

// Description returns the static human-readable description of k, or "" for unknown keys.
func Description(k AttributeKey) string {
	return descriptions[k]
}

// Descriptions returns a copy of every known key's description, record-level keys included.
func Descriptions() map[AttributeKey]string {
	out := make(map[AttributeKey]string, len(descriptions))
	for k, v := range descriptions {
		out[k] = v
	}
	return out
}

// IsAttribute reports whether k belongs to the fixed attribute set.
func IsAttribute(k AttributeKey) bool {
	_, ok := descriptions[k]
	return ok && k != Timestamp && k != Timezone && k != TimestampUnix
}

// KeyFromLabel turns a display label such as "Air Temperature" into its key form.
func KeyFromLabel(label string) AttributeKey {
	return AttributeKey(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_"))
}

// RawObservation is one label/value pair as scraped from the station page.
type RawObservation struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Measurement is a normalized observation. Value is nil only when never observed.
type Measurement struct {
	Value       any     `json:"value"`
	Unit        *string `json:"unit"`
	Description *string `json:"description"`
}

// Empty returns the unobserved measurement for k.
func Empty(k AttributeKey) Measurement {
	m := Measurement{}
	if d, ok := descriptions[k]; ok {
		m.Description = &d
	}
	return m
}

// UnitString returns the unit or "" when absent.
func (m Measurement) UnitString() string {
	if m.Unit == nil {
		return ""
	}
	return *m.Unit
}

// ValueString renders the value the way the flat text output shows it.
func (m Measurement) ValueString() string {
	if m.Value == nil {
		return ""
	}
	return fmt.Sprint(m.Value)
}

func (m *Measurement) UnmarshalJSON(b []byte) error {
	var raw struct {
		Value       json.RawMessage `json:"value"`
		Unit        *string         `json:"unit"`
		Description *string         `json:"description"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := decodeValue(raw.Value)
	if err != nil {
		return err
	}
	m.Value, m.Unit, m.Description = v, raw.Unit, raw.Description
	return nil
}

func decodeValue(b json.RawMessage) (any, error) {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return v, nil
}

// WindVector is the pair published on the windrose topic.
type WindVector struct {
	SpeedMps     *float64 `json:"wind_speed"`
	DirectionDeg *float64 `json:"wind_direction"`
}

// Record is the canonical snapshot of one station for one cycle.
type Record struct {
	StationID       string
	StationName     string
	Timestamp       Measurement
	Timezone        Measurement
	TimestampUnixMs *int64
	Attributes      map[AttributeKey]Measurement
}

// Identifier is the "<id> - <name>" form used in topic names and console output.
func (r Record) Identifier() string {
	return fmt.Sprintf("%s - %s", r.StationID, r.StationName)
}

// TimestampUnix returns the derived epoch-millisecond field as a Measurement.
func (r Record) TimestampUnix() Measurement {
	m := Empty(TimestampUnix)
	if r.TimestampUnixMs != nil {
		m.Value = *r.TimestampUnixMs
	}
	return m
}

// Entries lists every key with its measurement in output order: attributes,
// then timestamp, timezone and timestamp_unix.
func (r Record) Entries() []Entry {
	out := make([]Entry, 0, len(AttributeKeys)+3)
	for _, k := range AttributeKeys {
		m, ok := r.Attributes[k]
		if !ok {
			m = Empty(k)
		}
		out = append(out, Entry{Key: k, Measurement: m})
	}
	return append(out,
		Entry{Key: Timestamp, Measurement: r.Timestamp},
		Entry{Key: Timezone, Measurement: r.Timezone},
		Entry{Key: TimestampUnix, Measurement: r.TimestampUnix()},
	)
}

// Entry pairs a key with its measurement.
type Entry struct {
	Key         AttributeKey
	Measurement Measurement
}

// MarshalJSON writes the flat output object with a stable key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "station_id", r.StationID); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, "station_name", r.StationName); err != nil {
		return nil, err
	}
	for _, e := range r.Entries() {
		buf.WriteByte(',')
		if err := writeField(&buf, string(e.Key), e.Measurement); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v any) error {
	kb, err := json.Marshal(key)
	if err != nil {
		return err
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
	return nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Record{Attributes: make(map[AttributeKey]Measurement, len(AttributeKeys))}
	for k, v := range raw {
		switch k {
		case "station_id":
			if err := json.Unmarshal(v, &out.StationID); err != nil {
				return fmt.Errorf("station_id: %w", err)
			}
		case "station_name":
			if err := json.Unmarshal(v, &out.StationName); err != nil {
				return fmt.Errorf("station_name: %w", err)
			}
		default:
			var m Measurement
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			switch key := AttributeKey(k); key {
			case Timestamp:
				out.Timestamp = m
			case Timezone:
				out.Timezone = m
			case TimestampUnix:
				if i, ok := m.Value.(int64); ok {
					out.TimestampUnixMs = &i
				}
			default:
				if IsAttribute(key) {
					out.Attributes[key] = m
				}
			}
		}
	}
	*r = out
	return nil
}
