package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	require.Equal(t, start, c.Now())

	c.Advance(2 * time.Hour)
	require.Equal(t, time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2025, 3, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600)))
	require.Equal(t, time.UTC, c.Now().Location())
}

func TestSystemClockIsUTC(t *testing.T) {
	require.Equal(t, time.UTC, NewSystemClock().Now().Location())
}
