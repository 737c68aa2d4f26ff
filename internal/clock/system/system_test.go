package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before))
	assert.False(t, clk.Now().Before(got))
}

func TestClockPrecision(t *testing.T) {
	t.Parallel()

	got := New(WithPrecision(time.Second)).Now()
	assert.Zero(t, got.Nanosecond())
	assert.Equal(t, time.UTC, got.Location())
}
