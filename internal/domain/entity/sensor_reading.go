package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Value holds the literal text of a JSON scalar so that readings are
// written out exactly as they arrived.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("value is null")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Value(n.String())
	default:
		return fmt.Errorf("value must be a number or string, got %s", data)
	}
	return nil
}

type SensorReading struct {
	ID          Value `json:"id"`
	Temperature Value `json:"temperature"`
	Humidity    Value `json:"humidity"`
	Pressure    Value `json:"pressure"`
	Timestamp   Value `json:"timestamp"`
}

// ParseSensorReading decodes and validates a single sensor reading blob.
func ParseSensorReading(data []byte) (SensorReading, error) {
	var r SensorReading
	if err := json.Unmarshal(data, &r); err != nil {
		return SensorReading{}, fmt.Errorf("decode sensor reading: %w", err)
	}
	if err := r.Validate(); err != nil {
		return SensorReading{}, err
	}
	return r, nil
}

func (r SensorReading) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("sensor reading: missing id")
	}
	for _, m := range Metrics {
		v := r.Metric(m)
		if v == "" {
			return fmt.Errorf("sensor reading %s: missing %s", r.ID, m)
		}
		if _, err := parseNumber(string(v)); err != nil {
			return fmt.Errorf("sensor reading %s: %s %q is not a number", r.ID, m, v)
		}
	}
	if r.Timestamp == "" {
		return fmt.Errorf("sensor reading %s: missing timestamp", r.ID)
	}
	if _, err := r.Epoch(); err != nil {
		return fmt.Errorf("sensor reading %s: %w", r.ID, err)
	}
	return nil
}

// Metric returns the reading's value for m.
func (r SensorReading) Metric(m Metric) Value {
	switch m {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricPressure:
		return r.Pressure
	default:
		return ""
	}
}

// Epoch parses the timestamp as integer epoch seconds.
func (r SensorReading) Epoch() (time.Time, error) {
	s := string(r.Timestamp)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	f, err := parseNumber(s)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %q is not integer epoch seconds", s)
	}
	return time.Unix(int64(f), 0).UTC(), nil
}

// jsonNumber is the JSON number grammar. It keeps out the NaN, Inf and
// hex forms strconv.ParseFloat also accepts.
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// parseNumber parses a finite decimal number.
func parseNumber(s string) (float64, error) {
	if !jsonNumber.MatchString(s) {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return f, nil
}
