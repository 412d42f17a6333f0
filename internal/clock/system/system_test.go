package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()
	before := time.Now().Add(-time.Second)
	got := New().Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before, time.Now().Add(time.Second))
}

func TestFixedClock(t *testing.T) {
	t.Parallel()
	at := time.UnixMilli(1700000000123)
	clk := Fixed{T: at}
	assert.Equal(t, at, clk.Now())
	assert.Equal(t, int64(1700000000123), clk.Now().UnixMilli())
}
