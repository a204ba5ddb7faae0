package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConversionTimeStringLayouts(t *testing.T) {
	cases := []string{
		"2025-03-01 14:05:00+00:00",
		"2025-03-01T14:05:00Z",
		"2025-03-01T14:05:00",
		"2025-03-01 14:05:00",
	}

	for _, raw := range cases {
		ts, ok := ParseConversionTime(raw)
		require.True(t, ok, "layout %q", raw)
		assert.Equal(t, 2025, ts.Year())
		assert.Equal(t, time.March, ts.Month())
		assert.Equal(t, 14, ts.Hour())
	}
}

func TestParseConversionTimeDateOnly(t *testing.T) {
	ts, ok := ParseConversionTime("2025-03-01")
	require.True(t, ok)
	assert.Equal(t, 0, ts.Hour())
	assert.Equal(t, 1, ts.Day())
}

func TestParseConversionTimeEpochSeconds(t *testing.T) {
	want := time.Unix(1740830700, 0)

	ts, ok := ParseConversionTime(float64(1740830700))
	require.True(t, ok)
	assert.True(t, ts.Equal(want))

	ts, ok = ParseConversionTime(int64(1740830700))
	require.True(t, ok)
	assert.True(t, ts.Equal(want))

	ts, ok = ParseConversionTime("1740830700")
	require.True(t, ok)
	assert.True(t, ts.Equal(want))
}

func TestParseConversionTimeEpochMillis(t *testing.T) {
	ts, ok := ParseConversionTime(int64(1740830700123))
	require.True(t, ok)
	assert.True(t, ts.Equal(time.UnixMilli(1740830700123)))
}

func TestParseConversionTimeNative(t *testing.T) {
	now := time.Now()
	ts, ok := ParseConversionTime(now)
	require.True(t, ok)
	assert.True(t, ts.Equal(now))

	_, ok = ParseConversionTime(time.Time{})
	assert.False(t, ok)
}

func TestParseConversionTimeSliceTakesFirstElement(t *testing.T) {
	ts, ok := ParseConversionTime([]interface{}{"2025-03-01 14:05:00+00:00", "ignored"})
	require.True(t, ok)
	assert.Equal(t, 2025, ts.Year())

	_, ok = ParseConversionTime([]interface{}{})
	assert.False(t, ok)
}

func TestParseConversionTimeRejectsGarbage(t *testing.T) {
	for _, raw := range []interface{}{nil, "", "  ", "yesterday", "03/01/2025", float64(0), int64(-5), struct{}{}} {
		_, ok := ParseConversionTime(raw)
		assert.False(t, ok, "raw %v", raw)
	}
}
