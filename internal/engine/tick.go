package engine

import (
	"context"
	"fmt"
	"time"

	"sigtrade/internal/logger"
	"sigtrade/internal/oracle"
	"sigtrade/internal/pkg/trading"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

type groupKey struct {
	signalID int64
	userID   int64
}

type posKey struct {
	userID int64
	symbol string
	side   types.Side
}

// tick carries one reconcile pass. Orders and positions are loaded once;
// every mutation happens on the loaded rows and is flushed in a single
// SaveTick batch at the end.
type tick struct {
	e   *Engine
	now time.Time

	orders    []model.Order
	positions []*model.Position

	quotes   map[string]oracle.Quote
	deferred map[string]bool // symbols with no price this tick

	groups   map[groupKey][]*model.Order
	posByID  map[int64]*model.Position
	posByKey map[posKey]*model.Position

	dirtyOrders    map[int64]bool
	dirtyPositions map[int64]bool
}

// RunTick performs one reconcile pass: refresh prices, update position
// marks, expire stale entries, evaluate triggers, flush.
func (e *Engine) RunTick(ctx context.Context) error {
	t, err := e.load(ctx)
	if err != nil {
		return err
	}
	if len(t.orders) == 0 && len(t.positions) == 0 {
		return nil
	}
	t.fetchPrices(ctx)
	t.refreshPositions(ctx)
	t.expireStale()
	t.evaluate(ctx)
	return t.flush(ctx)
}

func (e *Engine) load(ctx context.Context) (*tick, error) {
	orders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}

	t := &tick{
		e:              e,
		now:            e.nowFn(),
		orders:         orders,
		quotes:         map[string]oracle.Quote{},
		deferred:       map[string]bool{},
		groups:         map[groupKey][]*model.Order{},
		posByID:        map[int64]*model.Position{},
		posByKey:       map[posKey]*model.Position{},
		dirtyOrders:    map[int64]bool{},
		dirtyPositions: map[int64]bool{},
	}
	for i := range t.orders {
		o := &t.orders[i]
		key := groupKey{signalID: o.SignalID, userID: o.UserID}
		t.groups[key] = append(t.groups[key], o)
	}
	for i := range positions {
		p := &positions[i]
		t.positions = append(t.positions, p)
		t.index(p)
	}
	return t, nil
}

func (t *tick) index(p *model.Position) {
	t.posByID[p.ID] = p
	t.posByKey[posKey{userID: p.UserID, symbol: p.Symbol, side: p.Side}] = p
}

// fetchPrices resolves one aggregate quote per distinct symbol. Symbols
// the oracle could not answer for are deferred: nothing on them is
// evaluated, expired or closed this tick.
func (t *tick) fetchPrices(ctx context.Context) {
	seen := map[string]bool{}
	var symbols []string
	for i := range t.orders {
		if !seen[t.orders[i].Symbol] {
			seen[t.orders[i].Symbol] = true
			symbols = append(symbols, t.orders[i].Symbol)
		}
	}
	for _, p := range t.positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	quotes, missing := t.e.prices.FetchSymbols(ctx, symbols)
	t.quotes = quotes
	for _, symbol := range missing {
		t.deferred[symbol] = true
		logger.Warnf("engine: no price for %s, deferring its orders and positions this tick", symbol)
	}
}

// refreshPositions recomputes the mark-dependent fields of every open
// position and closes isolated positions whose estimated liquidation
// price was crossed.
func (t *tick) refreshPositions(ctx context.Context) {
	for _, p := range t.positions {
		if p.Status != types.PositionOpen || t.deferred[p.Symbol] {
			continue
		}
		q, ok := t.quotes[p.Symbol]
		if !ok {
			continue
		}
		p.ROIPct = trading.ROIPct(p.AvgEntry, q.Price, p.Leverage, p.Side)
		t.markPosition(p)

		if !p.Isolated || p.LiqEstimate <= 0 {
			continue
		}
		if trading.ExitTriggered(p.Side, q.Price, p.LiqEstimate, true) {
			t.liquidate(ctx, p, q.Price)
		}
	}
}

// expireStale cancels initial and averaging entries that sat untouched for
// longer than staleEntryAfter, cascading to their still-pending siblings.
func (t *tick) expireStale() {
	for i := range t.orders {
		o := &t.orders[i]
		if o.Status != types.StatusOpen || !o.Kind.IsEntryLeg() {
			continue
		}
		if t.deferred[o.Symbol] {
			continue
		}
		if t.now.Sub(o.CreatedAt()) < staleEntryAfter {
			continue
		}
		logger.Infof("engine: order %d (%s %s) stale after %s, cancelling",
			o.ID, o.Kind, o.Symbol, staleEntryAfter)
		t.setStatus(o, types.StatusCancelled)
		t.cascadePending(o, types.StatusCancelled)
	}
}

// evaluate walks every live order and fires the ones whose trigger price
// was reached.
func (t *tick) evaluate(ctx context.Context) {
	for i := range t.orders {
		o := &t.orders[i]
		if o.Status != types.StatusOpen || t.deferred[o.Symbol] {
			continue
		}
		q, ok := t.quotes[o.Symbol]
		if !ok {
			continue
		}
		switch {
		case o.Kind.IsEntryLeg():
			if trading.WithinBand(q.Price, o.Price, entryBandPct) {
				t.executeEntry(ctx, o, q.Price)
			}
		case o.Kind == types.KindStoploss:
			if trading.ExitTriggered(o.Side, q.Price, o.Price, true) {
				t.executeFullClose(ctx, o, q.Price)
			}
		case o.Kind == types.KindTakeProfit:
			if trading.ExitTriggered(o.Side, q.Price, o.Price, false) {
				t.executeTakeProfit(ctx, o, q.Price)
			}
		case o.Kind == types.KindMoonbag:
			if trading.ExitTriggered(o.Side, q.Price, o.Price, false) {
				t.executeFullClose(ctx, o, q.Price)
			}
		}
	}
}

// flush writes every dirty row in one optimistic batch.
func (t *tick) flush(ctx context.Context) error {
	var orders []model.Order
	for i := range t.orders {
		if t.dirtyOrders[t.orders[i].ID] {
			orders = append(orders, t.orders[i])
		}
	}
	var positions []model.Position
	for _, p := range t.positions {
		if t.dirtyPositions[p.ID] {
			positions = append(positions, *p)
		}
	}
	if len(orders) == 0 && len(positions) == 0 {
		return nil
	}
	logger.Debugf("engine: flushing tick changeset orders=%d positions=%d", len(orders), len(positions))
	return t.e.store.SaveTick(ctx, orders, positions)
}

func (t *tick) markOrder(o *model.Order) { t.dirtyOrders[o.ID] = true }

func (t *tick) markPosition(p *model.Position) { t.dirtyPositions[p.ID] = true }

// setStatus transitions an order, stamping the close time on terminal
// states. Invalid transitions are logged and dropped rather than written.
func (t *tick) setStatus(o *model.Order, to types.OrderStatus) {
	next, err := types.Transition(o.Status, to)
	if err != nil {
		logger.Warnf("engine: order %d: %v", o.ID, err)
		return
	}
	o.Status = next
	if next.Terminal() && o.ClosedAtUnix == nil {
		ts := t.now.Unix()
		o.ClosedAtUnix = &ts
	}
	t.markOrder(o)
}

func (t *tick) siblings(o *model.Order) []*model.Order {
	return t.groups[groupKey{signalID: o.SignalID, userID: o.UserID}]
}

// cascadePending drives the still-pending siblings of o into a terminal
// state. Already-live siblings are left alone.
func (t *tick) cascadePending(o *model.Order, to types.OrderStatus) {
	for _, sib := range t.siblings(o) {
		if sib.ID == o.ID || sib.Status != types.StatusPending {
			continue
		}
		t.setStatus(sib, to)
	}
}

// cascadeGroup drives every non-terminal sibling of o, live or pending,
// into a terminal state.
func (t *tick) cascadeGroup(o *model.Order, to types.OrderStatus) {
	for _, sib := range t.siblings(o) {
		if sib.ID == o.ID || sib.Status.Terminal() {
			continue
		}
		t.setStatus(sib, to)
	}
}

// closePosition marks p closed and cascade-closes every group that was
// feeding or exiting it.
func (t *tick) closePosition(p *model.Position) {
	if p.Status != types.PositionOpen {
		return
	}
	p.Status = types.PositionClosed
	ts := t.now.Unix()
	p.ClosedAtUnix = &ts
	t.markPosition(p)

	for _, group := range t.groups {
		linked := false
		for _, o := range group {
			if o.PositionID != nil && *o.PositionID == p.ID {
				linked = true
				break
			}
		}
		if !linked {
			continue
		}
		for _, o := range group {
			if !o.Status.Terminal() {
				t.setStatus(o, types.StatusClosed)
			}
		}
	}

	text := fmt.Sprintf("Position closed: %s %s user=%d roi=%.2f%%", p.Symbol, p.Side, p.UserID, p.ROIPct)
	if err := t.e.notify.SendText(text); err != nil {
		logger.Debugf("engine: notify failed: %v", err)
	}
}
