package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sigtrade/internal/types"
)

func TestRoundToStep(t *testing.T) {
	assert.InDelta(t, 0.123, RoundToStep(0.1234, 0.001), 1e-12)
	assert.InDelta(t, 1.0, RoundToStep(1.0999, 0.1), 1e-12)
	// floor, never round up
	assert.InDelta(t, 0.001, RoundToStep(0.0019, 0.001), 1e-12)
	// zero step passes through
	assert.Equal(t, 0.1234, RoundToStep(0.1234, 0))
}

func TestVWAP(t *testing.T) {
	// empty position takes the fill price
	assert.InDelta(t, 100, VWAP(0, 0, 100, 2), 1e-9)
	// equal sizes average evenly
	assert.InDelta(t, 95, VWAP(100, 2, 90, 2), 1e-9)
	// weighting follows size
	assert.InDelta(t, 97.5, VWAP(100, 3, 90, 1), 1e-9)
}

func TestLiquidationEstimate(t *testing.T) {
	assert.InDelta(t, 90, LiquidationEstimate(100, 10, types.SideLong), 1e-9)
	assert.InDelta(t, 110, LiquidationEstimate(100, 10, types.SideShort), 1e-9)
	assert.Zero(t, LiquidationEstimate(100, 0, types.SideLong))
}

func TestROIPct(t *testing.T) {
	assert.InDelta(t, 50, ROIPct(100, 105, 10, types.SideLong), 1e-9)
	assert.InDelta(t, -50, ROIPct(100, 105, 10, types.SideShort), 1e-9)
	assert.InDelta(t, 10, ROIPct(100, 110, 1, types.SideLong), 1e-9)
}

func TestWithinBand(t *testing.T) {
	assert.True(t, WithinBand(100.4, 100, 0.5))
	assert.True(t, WithinBand(99.6, 100, 0.5))
	assert.False(t, WithinBand(100.6, 100, 0.5))
	// exact boundary counts as inside
	assert.True(t, WithinBand(100.5, 100, 0.5))
}

func TestExitTriggered(t *testing.T) {
	t.Run("long", func(t *testing.T) {
		assert.True(t, ExitTriggered(types.SideLong, 89.9, 90, true), "stop fires below")
		assert.False(t, ExitTriggered(types.SideLong, 90.1, 90, true))
		assert.True(t, ExitTriggered(types.SideLong, 110, 110, false), "tp fires at-or-above")
		assert.False(t, ExitTriggered(types.SideLong, 109.9, 110, false))
	})
	t.Run("short", func(t *testing.T) {
		assert.True(t, ExitTriggered(types.SideShort, 110.1, 110, true), "stop fires above")
		assert.True(t, ExitTriggered(types.SideShort, 90, 90, false), "tp fires at-or-below")
		assert.False(t, ExitTriggered(types.SideShort, 90.1, 90, false))
	})
}

func TestCalcCloseAmount(t *testing.T) {
	assert.InDelta(t, 0.5, CalcCloseAmount(1.0, 0, 0.5), 1e-12)
	// explicit base overrides the current size
	assert.InDelta(t, 0.3, CalcCloseAmount(1.0, 0.6, 0.5), 1e-12)
	// capped at what the position still holds
	assert.InDelta(t, 0.4, CalcCloseAmount(0.4, 2.0, 0.5), 1e-12)
	assert.Zero(t, CalcCloseAmount(0, 0, 0.5))
}

// Closing p1..pn percent of the running size leaves initial * prod(1-pi/100).
func TestSequentialPartialCloses(t *testing.T) {
	size := 100.0
	for _, pct := range []float64{50, 30, 20} {
		size -= CalcCloseAmount(size, 0, pct/100)
	}
	want := 100.0 * 0.5 * 0.7 * 0.8
	assert.InDelta(t, want, size, 1e-9)
}
