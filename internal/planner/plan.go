// Package planner turns one accepted signal into a per-user, per-exchange
// plan group: initial entry, DCA legs, stoploss, take-profit legs and an
// optional moonbag. Plan building is pure; persistence and balance lookups
// live in the fan-out service.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sigtrade/internal/pkg/trading"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// Sentinel skip reasons. All of them are non-fatal: the fan-out logs and
// moves on to the next user.
var (
	ErrSideIgnored  = errors.New("signal side ignored by settings")
	ErrNoBalance    = errors.New("no balance available")
	ErrZeroSize     = errors.New("computed size is zero")
	ErrBelowMinimum = errors.New("notional below exchange minimum")
	ErrNoExchange   = errors.New("no exchange selected")
	ErrNoPrecision  = errors.New("missing exchange precision data")
)

// Entry split across initial + two DCA legs.
var entrySplit = [3]float64{0.50, 0.20, 0.30}

const slippageBandPct = 0.5 // entries fill within this band of the trigger

// Plan is the computed order set for one (signal, user).
type Plan struct {
	GroupID string
	Orders  []model.Order
}

// BuildPlan computes the full plan group. balance is the quote-currency
// balance the sizing runs against (the testing notional in test mode).
func BuildPlan(sig types.Signal, set types.ProviderSettings, prec types.ExchangePrecision, balance float64, now time.Time) (Plan, error) {
	if set.Ignores(sig.Side) {
		return Plan{}, ErrSideIgnored
	}
	if set.Exchange == types.ExchangeUnknown {
		return Plan{}, ErrNoExchange
	}
	if prec.AmountStep <= 0 && prec.PriceStep <= 0 {
		return Plan{}, ErrNoPrecision
	}
	if balance <= 0 && !set.Testing {
		return Plan{}, ErrNoBalance
	}
	if sig.Entry <= 0 {
		return Plan{}, fmt.Errorf("signal %d: invalid entry price", sig.ID)
	}

	cost := balance * set.RiskPct / 100
	if set.MinUSD > 0 && cost < set.MinUSD {
		cost = set.MinUSD
	}
	if set.MaxUSD > 0 && cost > set.MaxUSD {
		cost = set.MaxUSD
	}

	leverage := sig.Leverage
	if set.LeverageOverride > 0 {
		leverage = set.LeverageOverride
	}
	leverage = prec.ClampLeverage(leverage)
	if leverage <= 0 {
		leverage = 1
	}

	notional := cost * float64(leverage)
	if prec.MinNotional > 0 && notional < prec.MinNotional {
		return Plan{}, ErrBelowMinimum
	}
	totalSize := trading.RoundToStep(notional/sig.Entry, prec.AmountStep)
	if totalSize <= 0 {
		return Plan{}, ErrZeroSize
	}

	stopPrice := resolveStopPrice(sig, set, prec)

	plan := Plan{GroupID: uuid.NewString()}
	base := model.Order{
		GroupID:  plan.GroupID,
		SignalID: sig.ID,
		UserID:   set.UserID,
		Exchange: set.Exchange,
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Leverage: leverage,
		Isolated: set.Isolated,
		Test:     set.Testing,

		CreatedAtUnix: now.Unix(),
	}

	entryLegs := splitEntryLegs(totalSize, sig.Entry, prec)
	dcaPrices := dcaTriggerPrices(sig.Entry, stopPrice, sig.Side, prec)
	for i, size := range entryLegs {
		if size <= 0 {
			continue
		}
		leg := base
		leg.Size = size
		leg.Stoploss = stopPrice
		if i == 0 {
			leg.Kind = types.KindEntry
			leg.Price = sig.Entry
			leg.Status = types.StatusOpen // only the initial entry is live
		} else {
			leg.Kind = types.KindDCA
			leg.KindIndex = i
			leg.Price = dcaPrices[i-1]
			leg.Status = types.StatusPending
		}
		plan.Orders = append(plan.Orders, leg)
	}

	stopLeg := base
	stopLeg.Kind = types.KindStoploss
	stopLeg.Price = stopPrice
	stopLeg.Stoploss = stopPrice
	stopLeg.SizePct = 100
	stopLeg.Status = types.StatusPending
	if set.IgnoreStoploss {
		// Emitted pre-closed: the plan group stays complete, no live leg.
		stopLeg.Status = types.StatusClosed
		closed := now.Unix()
		stopLeg.ClosedAtUnix = &closed
	}
	plan.Orders = append(plan.Orders, stopLeg)

	plan.Orders = append(plan.Orders, takeProfitLegs(base, sig, set, totalSize, prec)...)
	return plan, nil
}

// resolveStopPrice follows the precedence: the signal's own stop when
// present and honored, otherwise the settings' percentage offset from
// entry on the adverse side.
func resolveStopPrice(sig types.Signal, set types.ProviderSettings, prec types.ExchangePrecision) float64 {
	if sig.Stoploss > 0 && !set.IgnoreStoploss {
		return trading.RoundToStep(sig.Stoploss, prec.PriceStep)
	}
	pct := set.StopPct
	if pct <= 0 {
		pct = 5
	}
	offset := sig.Entry * pct / 100
	if sig.Side == types.SideShort {
		return trading.RoundToStep(sig.Entry+offset, prec.PriceStep)
	}
	return trading.RoundToStep(sig.Entry-offset, prec.PriceStep)
}

// splitEntryLegs distributes total size 50/20/30 across initial/DCA1/DCA2.
// Legs whose notional would fall below the exchange minimum are raised to
// it and the unraised legs shrink proportionally so the sum never exceeds
// the original total. When the total cannot carry three minimum legs the
// split collapses into a single full-size entry.
func splitEntryLegs(totalSize, entry float64, prec types.ExchangePrecision) [3]float64 {
	var legs [3]float64
	minSize := 0.0
	if prec.MinNotional > 0 && entry > 0 {
		minSize = prec.MinNotional / entry
		if prec.AmountStep > 0 {
			rounded := trading.RoundToStep(minSize, prec.AmountStep)
			if rounded < minSize {
				rounded += prec.AmountStep
			}
			minSize = rounded
		}
	}
	if minSize > 0 && totalSize < 3*minSize {
		legs[0] = trading.RoundToStep(totalSize, prec.AmountStep)
		return legs
	}

	raised := [3]bool{}
	for i, share := range entrySplit {
		legs[i] = totalSize * share
	}
	// Raising one leg shrinks the others, which can drag another leg
	// under the floor; repeat until the raised set is stable. Each pass
	// raises at least one more leg, so this runs at most three times.
	for {
		raisedBudget := 0.0
		flexTotal := 0.0
		for i := range legs {
			if raised[i] {
				raisedBudget += minSize
			} else {
				flexTotal += legs[i]
			}
		}
		if remaining := totalSize - raisedBudget; flexTotal > remaining && flexTotal > 0 {
			scale := remaining / flexTotal
			for i := range legs {
				if !raised[i] {
					legs[i] *= scale
				}
			}
		}
		stable := true
		for i := range legs {
			if !raised[i] && minSize > 0 && legs[i] < minSize {
				legs[i] = minSize
				raised[i] = true
				stable = false
			}
		}
		if stable {
			break
		}
	}
	for i := range legs {
		legs[i] = trading.RoundToStep(legs[i], prec.AmountStep)
	}
	return legs
}

// dcaTriggerPrices shifts entry 1/3 and 2/3 of the way toward the stop,
// biasing the averaging-down toward the risk boundary.
func dcaTriggerPrices(entry, stop float64, side types.Side, prec types.ExchangePrecision) [2]float64 {
	dist := entry - stop
	if side == types.SideShort {
		dist = -(stop - entry)
	}
	var out [2]float64
	out[0] = trading.RoundToStep(entry-dist/3, prec.PriceStep)
	out[1] = trading.RoundToStep(entry-2*dist/3, prec.PriceStep)
	return out
}

// takeProfitLegs emits one leg per signal target, sized by the configured
// distribution (zero-padded). A leg sized exactly 100% terminates
// emission. With moonbag enabled its percentage is reserved from the
// distribution total and an extra leg rides beyond the last target.
func takeProfitLegs(base model.Order, sig types.Signal, set types.ProviderSettings, totalSize float64, prec types.ExchangePrecision) []model.Order {
	if len(sig.Targets) == 0 {
		return nil
	}
	budget := 100.0
	if set.Moonbag.Enabled && set.Moonbag.Pct > 0 {
		budget -= set.Moonbag.Pct
	}

	var legs []model.Order
	used := 0.0
	lastTarget := sig.Targets[len(sig.Targets)-1]
	for i, target := range sig.Targets {
		pct := 0.0
		if i < len(set.TPDistribution) {
			pct = set.TPDistribution[i]
		}
		if pct <= 0 {
			continue
		}
		terminal := pct >= 100
		if used+pct > budget {
			pct = budget - used
		}
		if pct <= 0 {
			break
		}
		leg := base
		leg.Kind = types.KindTakeProfit
		leg.KindIndex = i + 1
		leg.Price = trading.RoundToStep(target, prec.PriceStep)
		leg.SizePct = pct
		leg.Size = trading.RoundToStep(totalSize*pct/100, prec.AmountStep)
		leg.Status = types.StatusPending
		leg.MoveStop = set.MoveStopOnTPIndex > 0 && set.MoveStopOnTPIndex == i+1
		legs = append(legs, leg)
		used += pct
		if terminal {
			// A 100% leg closes everything; nothing left to emit.
			return legs
		}
		if used >= budget {
			break
		}
	}

	if set.Moonbag.Enabled && set.Moonbag.Pct > 0 {
		offset := lastTarget * set.Moonbag.TriggerOffsetPct / 100
		trigger := lastTarget + offset
		if sig.Side == types.SideShort {
			trigger = lastTarget - offset
		}
		leg := base
		leg.Kind = types.KindMoonbag
		leg.Price = trading.RoundToStep(trigger, prec.PriceStep)
		leg.SizePct = 100 // closes whatever the TPs left behind
		leg.Status = types.StatusPending
		legs = append(legs, leg)
	}
	return legs
}
