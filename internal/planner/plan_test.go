package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

var planNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func baseSignal() types.Signal {
	return types.Signal{
		ID:       7,
		Symbol:   "BTCUSDT",
		Side:     types.SideLong,
		Leverage: 10,
		Entry:    100,
		Stoploss: 90,
		Targets:  []float64{110, 120, 130},
	}
}

func baseSettings() types.ProviderSettings {
	return types.ProviderSettings{
		UserID:         42,
		Exchange:       types.ExchangeBinance,
		Enabled:        true,
		RiskPct:        5,
		TPDistribution: []float64{50, 30, 20},
	}
}

func basePrecision() types.ExchangePrecision {
	return types.ExchangePrecision{
		MinNotional: 5,
		PriceStep:   0.01,
		AmountStep:  0.001,
		MinLeverage: 1,
		MaxLeverage: 125,
	}
}

func legsOfKind(orders []model.Order, kind types.OrderKind) []model.Order {
	var out []model.Order
	for _, o := range orders {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func TestBuildPlanWorkedExample(t *testing.T) {
	// balance 1000, risk 5% -> cost 50, x10 leverage -> notional 500,
	// entry 100 -> total size 5.
	plan, err := BuildPlan(baseSignal(), baseSettings(), basePrecision(), 1000, planNow)
	require.NoError(t, err)
	require.NotEmpty(t, plan.GroupID)
	require.Len(t, plan.Orders, 7)

	entries := legsOfKind(plan.Orders, types.KindEntry)
	dcas := legsOfKind(plan.Orders, types.KindDCA)
	require.Len(t, entries, 1)
	require.Len(t, dcas, 2)

	assert.InDelta(t, 2.5, entries[0].Size, 1e-9)
	assert.InDelta(t, 100, entries[0].Price, 1e-9)
	assert.Equal(t, types.StatusOpen, entries[0].Status)

	// DCA triggers sit 1/3 and 2/3 of the way toward the stop.
	assert.InDelta(t, 1.0, dcas[0].Size, 1e-9)
	assert.InDelta(t, 96.66, dcas[0].Price, 1e-9)
	assert.InDelta(t, 1.5, dcas[1].Size, 1e-9)
	assert.InDelta(t, 93.33, dcas[1].Price, 1e-9)
	for _, leg := range dcas {
		assert.Equal(t, types.StatusPending, leg.Status)
	}

	// entry legs together hold the full size
	total := entries[0].Size + dcas[0].Size + dcas[1].Size
	assert.InDelta(t, 5.0, total, 1e-9)

	stops := legsOfKind(plan.Orders, types.KindStoploss)
	require.Len(t, stops, 1)
	assert.InDelta(t, 90, stops[0].Price, 1e-9)
	assert.InDelta(t, 100, stops[0].SizePct, 1e-9)
	assert.Equal(t, types.StatusPending, stops[0].Status)

	tps := legsOfKind(plan.Orders, types.KindTakeProfit)
	require.Len(t, tps, 3)
	wantPrices := []float64{110, 120, 130}
	wantPcts := []float64{50, 30, 20}
	wantSizes := []float64{2.5, 1.5, 1.0}
	for i, leg := range tps {
		assert.Equal(t, i+1, leg.KindIndex)
		assert.InDelta(t, wantPrices[i], leg.Price, 1e-9)
		assert.InDelta(t, wantPcts[i], leg.SizePct, 1e-9)
		assert.InDelta(t, wantSizes[i], leg.Size, 1e-9)
		assert.Equal(t, types.StatusPending, leg.Status)
	}

	// every leg carries the group identity
	for _, o := range plan.Orders {
		assert.Equal(t, plan.GroupID, o.GroupID)
		assert.Equal(t, int64(7), o.SignalID)
		assert.Equal(t, int64(42), o.UserID)
		assert.Equal(t, 10, o.Leverage)
	}
}

func TestBuildPlanSkips(t *testing.T) {
	t.Run("ignored side", func(t *testing.T) {
		set := baseSettings()
		set.IgnoreLong = true
		_, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
		assert.ErrorIs(t, err, ErrSideIgnored)
	})

	t.Run("no exchange", func(t *testing.T) {
		set := baseSettings()
		set.Exchange = types.ExchangeUnknown
		_, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
		assert.ErrorIs(t, err, ErrNoExchange)
	})

	t.Run("no balance", func(t *testing.T) {
		_, err := BuildPlan(baseSignal(), baseSettings(), basePrecision(), 0, planNow)
		assert.ErrorIs(t, err, ErrNoBalance)
	})

	t.Run("below exchange minimum", func(t *testing.T) {
		prec := basePrecision()
		prec.MinNotional = 1000 // cost 50 x10 = 500 < 1000
		_, err := BuildPlan(baseSignal(), baseSettings(), prec, 1000, planNow)
		assert.ErrorIs(t, err, ErrBelowMinimum)
	})

	t.Run("missing precision", func(t *testing.T) {
		_, err := BuildPlan(baseSignal(), baseSettings(), types.ExchangePrecision{}, 1000, planNow)
		assert.ErrorIs(t, err, ErrNoPrecision)
	})
}

func TestBuildPlanCostClamps(t *testing.T) {
	set := baseSettings()
	set.MinUSD = 80 // raises cost 50 -> 80, notional 800, size 8
	plan, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)
	entries := legsOfKind(plan.Orders, types.KindEntry)
	require.Len(t, entries, 1)
	assert.InDelta(t, 4.0, entries[0].Size, 1e-9)

	set = baseSettings()
	set.MaxUSD = 20 // caps cost 50 -> 20, notional 200, size 2
	plan, err = BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)
	entries = legsOfKind(plan.Orders, types.KindEntry)
	require.Len(t, entries, 1)
	assert.InDelta(t, 1.0, entries[0].Size, 1e-9)
}

func TestBuildPlanLeverageOverrideAndClamp(t *testing.T) {
	set := baseSettings()
	set.LeverageOverride = 200
	prec := basePrecision()
	prec.MaxLeverage = 50
	plan, err := BuildPlan(baseSignal(), set, prec, 1000, planNow)
	require.NoError(t, err)
	for _, o := range plan.Orders {
		assert.Equal(t, 50, o.Leverage)
	}
}

func TestBuildPlanIgnoredStoplossPreClosed(t *testing.T) {
	set := baseSettings()
	set.IgnoreStoploss = true
	set.StopPct = 5
	plan, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)

	stops := legsOfKind(plan.Orders, types.KindStoploss)
	require.Len(t, stops, 1)
	assert.Equal(t, types.StatusClosed, stops[0].Status)
	require.NotNil(t, stops[0].ClosedAtUnix)
	assert.Equal(t, planNow.Unix(), *stops[0].ClosedAtUnix)
	// the signal's stop is bypassed, the settings offset applies
	assert.InDelta(t, 95, stops[0].Price, 1e-9)
}

func TestBuildPlanStopFallbackForShort(t *testing.T) {
	sig := baseSignal()
	sig.Side = types.SideShort
	sig.Stoploss = 0
	set := baseSettings()
	set.StopPct = 4
	plan, err := BuildPlan(sig, set, basePrecision(), 1000, planNow)
	require.NoError(t, err)

	stops := legsOfKind(plan.Orders, types.KindStoploss)
	require.Len(t, stops, 1)
	assert.InDelta(t, 104, stops[0].Price, 1e-9)

	// short DCA triggers walk upward toward the stop
	dcas := legsOfKind(plan.Orders, types.KindDCA)
	require.Len(t, dcas, 2)
	assert.Greater(t, dcas[0].Price, 100.0)
	assert.Greater(t, dcas[1].Price, dcas[0].Price)
}

func TestSplitEntryLegsMinimumRaise(t *testing.T) {
	prec := basePrecision()
	prec.MinNotional = 30 // min size 0.3 at entry 100

	// total 1.0 -> raw 0.5/0.2/0.3; the 0.2 leg is raised to 0.3 and the
	// others shrink so the sum stays within 1.0.
	legs := splitEntryLegs(1.0, 100, prec)
	assert.InDelta(t, 0.3, legs[1], 1e-9)
	sum := legs[0] + legs[1] + legs[2]
	assert.LessOrEqual(t, sum, 1.0+1e-9)
	assert.Greater(t, legs[0], legs[2])
}

func TestSplitEntryLegsCascadedRaise(t *testing.T) {
	prec := basePrecision()
	prec.MinNotional = 30 // min size 0.3 at entry 100

	// total 1.002: raising DCA1 alone shrinks DCA2 to ~0.263, under the
	// floor; the rescale repeats until every leg clears it.
	legs := splitEntryLegs(1.002, 100, prec)
	assert.InDelta(t, 0.3, legs[1], 1e-9)
	assert.InDelta(t, 0.3, legs[2], 1e-9)
	assert.InDelta(t, 0.402, legs[0], 1e-3)
	for i, leg := range legs {
		assert.GreaterOrEqual(t, leg*100, 30.0-1e-6, "leg %d notional stays above the minimum", i)
	}
	assert.LessOrEqual(t, legs[0]+legs[1]+legs[2], 1.002+1e-9)
}

func TestSplitEntryLegsCollapse(t *testing.T) {
	prec := basePrecision()
	prec.MinNotional = 30 // min size 0.3, total 0.8 < 3x0.3

	legs := splitEntryLegs(0.8, 100, prec)
	assert.InDelta(t, 0.8, legs[0], 1e-9)
	assert.Zero(t, legs[1])
	assert.Zero(t, legs[2])
}

func TestTakeProfitTerminalLeg(t *testing.T) {
	set := baseSettings()
	set.TPDistribution = []float64{100, 50}
	plan, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)

	tps := legsOfKind(plan.Orders, types.KindTakeProfit)
	require.Len(t, tps, 1, "a 100%% leg terminates emission")
	assert.InDelta(t, 100, tps[0].SizePct, 1e-9)
	assert.Empty(t, legsOfKind(plan.Orders, types.KindMoonbag))
}

func TestMoonbagLeg(t *testing.T) {
	set := baseSettings()
	set.Moonbag = types.MoonbagSettings{Enabled: true, Pct: 30, TriggerOffsetPct: 10}
	plan, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)

	tps := legsOfKind(plan.Orders, types.KindTakeProfit)
	require.Len(t, tps, 2, "budget 70%% fits only the first two legs")
	assert.InDelta(t, 50, tps[0].SizePct, 1e-9)
	assert.InDelta(t, 20, tps[1].SizePct, 1e-9, "second leg truncated to the remaining budget")

	moons := legsOfKind(plan.Orders, types.KindMoonbag)
	require.Len(t, moons, 1)
	assert.InDelta(t, 143, moons[0].Price, 1e-9, "10%% beyond the last target")
	assert.InDelta(t, 100, moons[0].SizePct, 1e-9)
}

func TestMoveStopFlag(t *testing.T) {
	set := baseSettings()
	set.MoveStopOnTPIndex = 2
	plan, err := BuildPlan(baseSignal(), set, basePrecision(), 1000, planNow)
	require.NoError(t, err)

	tps := legsOfKind(plan.Orders, types.KindTakeProfit)
	require.Len(t, tps, 3)
	assert.False(t, tps[0].MoveStop)
	assert.True(t, tps[1].MoveStop)
	assert.False(t, tps[2].MoveStop)
}
