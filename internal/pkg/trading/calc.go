// Package trading provides the shared position math: step rounding, trigger
// checks, volume-weighted averaging, and the liquidation/ROI estimates.
// Comparisons go through shopspring/decimal so float noise never flips a
// trigger.
package trading

import (
	"math"

	"github.com/shopspring/decimal"

	"sigtrade/internal/types"
)

var decOne = decimal.NewFromInt(1)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// RoundToStep floors val to the nearest multiple of step. A zero step
// returns val unchanged.
func RoundToStep(val, step float64) float64 {
	if step <= 0 || val <= 0 {
		return val
	}
	v := decFromFloat(val)
	s := decFromFloat(step)
	return decToFloat(v.Div(s).Floor().Mul(s))
}

// VWAP merges an existing position (avgPrice, size) with a new fill
// (fillPrice, fillSize) and returns the combined average entry.
func VWAP(avgPrice, size, fillPrice, fillSize float64) float64 {
	total := size + fillSize
	if total <= 0 {
		return 0
	}
	a := decFromFloat(avgPrice).Mul(decFromFloat(size))
	b := decFromFloat(fillPrice).Mul(decFromFloat(fillSize))
	return decToFloat(a.Add(b).Div(decFromFloat(total)))
}

// LiquidationEstimate approximates the isolated-margin liquidation price.
// It ignores maintenance margin tiers and fees; the engine only uses it
// to close isolated positions past the estimate, never to mirror the
// exchange's own trigger.
func LiquidationEstimate(entry float64, leverage int, side types.Side) float64 {
	if entry <= 0 || leverage <= 0 {
		return 0
	}
	frac := decOne.Div(decimal.NewFromInt(int64(leverage)))
	base := decFromFloat(entry)
	switch side {
	case types.SideLong:
		return decToFloat(base.Mul(decOne.Sub(frac)))
	case types.SideShort:
		return decToFloat(base.Mul(decOne.Add(frac)))
	default:
		return 0
	}
}

// ROIPct is the leverage-adjusted unrealized return in percent, sign
// flipped for shorts.
func ROIPct(entry, price float64, leverage int, side types.Side) float64 {
	if entry <= 0 || price <= 0 || leverage <= 0 {
		return 0
	}
	change := decFromFloat(price).Sub(decFromFloat(entry)).
		Div(decFromFloat(entry)).
		Mul(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(leverage)))
	if side == types.SideShort {
		change = change.Neg()
	}
	return decToFloat(change)
}

// WithinBand reports whether price is within bandPct percent of target on
// either side. Entry and DCA legs fill on this loose check so a fast move
// through the trigger is not missed between ticks.
func WithinBand(price, target, bandPct float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	band := decFromFloat(target).Mul(decFromFloat(bandPct)).Div(decimal.NewFromInt(100))
	diff := decFromFloat(price).Sub(decFromFloat(target)).Abs()
	return diff.Cmp(band) <= 0
}

// CrossedBelow reports price at-or-below target; CrossedAbove the mirror.
// Exit legs use exact-cross semantics: a long take-profit fills once price
// crossed above its target, a long stoploss once price crossed below, and
// shorts mirror both.
func CrossedBelow(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decFromFloat(price).Cmp(decFromFloat(target)) <= 0
}

func CrossedAbove(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decFromFloat(price).Cmp(decFromFloat(target)) >= 0
}

// ExitTriggered evaluates an exit trigger for the position side. Stop legs
// trigger on the adverse cross, profit legs on the favorable one.
func ExitTriggered(side types.Side, price, target float64, stopLeg bool) bool {
	switch side {
	case types.SideLong:
		if stopLeg {
			return CrossedBelow(price, target)
		}
		return CrossedAbove(price, target)
	case types.SideShort:
		if stopLeg {
			return CrossedAbove(price, target)
		}
		return CrossedBelow(price, target)
	default:
		return false
	}
}

// CalcCloseAmount computes the size removed by a partial close of ratio
// (0..1) against the base size, capped at what the position still holds.
func CalcCloseAmount(currentSize, baseSize, ratio float64) float64 {
	if currentSize <= 0 || ratio <= 0 {
		return 0
	}
	base := currentSize
	if baseSize > 0 {
		base = baseSize
	}
	amount := decToFloat(decFromFloat(base).Mul(decFromFloat(ratio)))
	if amount > currentSize {
		amount = currentSize
	}
	return amount
}
