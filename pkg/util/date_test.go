package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	tests := map[string]time.Time{
		"2024-10-10T10:10:10Z":                  want,
		"2024-10-10T12:10:10+02:00":             want,
		"2024-10-10T10:10:10.5Z":                want.Add(500 * time.Millisecond),
		"2024-10-10":                            time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC),
		strconv.FormatInt(want.Unix(), 10):      want,
		strconv.FormatInt(want.UnixMilli(), 10): want,
	}
	for in, exp := range tests {
		got, ok := ParseTime(in)
		require.True(t, ok, in)
		assert.True(t, exp.Equal(got), "%s: got %v", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	for _, bad := range []string{"", "  ", "yesterday", "-5", "0"} {
		_, ok := ParseTime(bad)
		assert.False(t, ok, bad)
	}
}

func TestUpperSymbols(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, UpperSymbols([]string{" btcusdt", "ETHUSDT", "", "BTCUSDT "}))
	assert.Empty(t, UpperSymbols(nil))
}
