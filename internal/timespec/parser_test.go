package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	tests := []struct {
		spec string
		want time.Time
	}{
		{"1h", now.Add(-time.Hour)},
		{"1h30m", now.Add(-90 * time.Minute)},
		{"0s", now},
		{"2025-10-29T13:00:00Z", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{"2025-10-29T15:00:00+02:00", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{"2025-10-01", time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"2025-10-01T08:30", time.Date(2025, 10, 1, 8, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseAt(tt.spec, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseAt_Invalid(t *testing.T) {
	for _, spec := range []string{"", "yesterday", "-1h", "2025-13-01"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseAt(spec, now)
			assert.Error(t, err)
		})
	}
}

func TestParseRangeAt(t *testing.T) {
	since, until, err := ParseRangeAt("2h", "1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour).UnixMilli(), since)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), until)

	since, until, err = ParseRangeAt("", "", now)
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRangeAt("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRangeAt("bogus", "", now)
	assert.ErrorContains(t, err, "invalid --since")

	_, _, err = ParseRangeAt("", "bogus", now)
	assert.ErrorContains(t, err, "invalid --until")
}
