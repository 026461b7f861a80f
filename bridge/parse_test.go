package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var arrival = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestParseReading(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		value   float64
		at      time.Time
	}{
		{"bare number", "21.4", 21.4, arrival},
		{"padded number", " 19 \n", 19, arrival},
		{"value object", `{"value": 22.5}`, 22.5, arrival},
		{"temperature object", `{"temperature": 20.1, "humidity": 40}`, 20.1, arrival},
		{"timestamped", `{"value": 18, "timestamp": "2026-03-01T07:59:00Z"}`, 18, arrival.Add(-time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseReading([]byte(tt.payload), arrival)
			require.NoError(t, err)

			assert.InDelta(t, tt.value, r.Value, 1e-9)
			assert.True(t, tt.at.Equal(r.At), "got %v", r.At)
		})
	}
}

func TestParseReadingRejects(t *testing.T) {
	for _, payload := range []string{"", "warm", `{"humidity": 40}`, `{"value": "hot"}`} {
		_, err := parseReading([]byte(payload), arrival)
		assert.Error(t, err, payload)
	}

	_, err := parseReading([]byte(`{"linkquality": 80}`), arrival)
	assert.ErrorIs(t, err, errNoValue)
}
