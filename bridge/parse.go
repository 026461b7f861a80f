package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errNoValue = errors.New("payload carries no value")

type reading struct {
	Value float64
	At    time.Time
}

type readingPayload struct {
	Value       *float64   `json:"value"`
	Temperature *float64   `json:"temperature"`
	Timestamp   *time.Time `json:"timestamp"`
}

// parseReading accepts a bare number or a JSON object with a value (or
// temperature) and an optional RFC 3339 timestamp. Readings without a
// timestamp are stamped with arrival.
func parseReading(payload []byte, arrival time.Time) (reading, error) {
	text := strings.TrimSpace(string(payload))

	if value, err := strconv.ParseFloat(text, 64); err == nil {
		return reading{Value: value, At: arrival}, nil
	}

	var p readingPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return reading{}, fmt.Errorf("parse reading %q: %w", text, err)
	}

	r := reading{At: arrival}
	switch {
	case p.Value != nil:
		r.Value = *p.Value
	case p.Temperature != nil:
		r.Value = *p.Temperature
	default:
		return reading{}, fmt.Errorf("parse reading %q: %w", text, errNoValue)
	}

	if p.Timestamp != nil {
		r.At = *p.Timestamp
	}

	return r, nil
}

func parseTemperature(payload []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
}
