package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, time.August, 31, 23, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)
	assert.Equal(t, start, clk.Now())

	clk.Advance(2 * time.Hour)
	assert.Equal(t, time.September, clk.Now().Month())

	clk.Set(start)
	assert.Equal(t, start, clk.Now())
}
