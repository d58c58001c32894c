package engine

import (
	"context"
	"fmt"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/pkg/trading"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// Residual sizes below this are treated as a fully closed position.
const sizeEpsilon = 1e-9

type sendFn func(exchange.Gateway, exchange.Credentials, exchange.OrderRequest) exchange.OrderResult

// send routes one trade call through the gateway registry. Test-mode
// orders skip the venue entirely and report success.
func (t *tick) send(ctx context.Context, ex types.Exchange, userID int64, test bool, req exchange.OrderRequest, call sendFn) exchange.OrderResult {
	if test {
		return exchange.Succeeded("test-mode")
	}
	creds, err := t.e.store.CredentialsFor(ctx, userID, ex)
	if err != nil {
		return exchange.Failed(exchange.CodeUnknown, err.Error(), "")
	}
	return t.e.registry.Trade(ex, func(gw exchange.Gateway) exchange.OrderResult {
		return call(gw, creds, req)
	})
}

// executeEntry fills one initial or averaging entry whose trigger band was
// hit. An insufficient-balance answer abandons the whole plan group; a
// min-notional answer abandons only this leg; anything else is retried on
// the next tick.
func (t *tick) executeEntry(ctx context.Context, o *model.Order, price float64) {
	req := exchange.OrderRequest{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Kind:     o.Kind,
		Price:    o.Price,
		Size:     o.Size,
		Leverage: o.Leverage,
		Isolated: o.Isolated,
	}
	res := t.send(ctx, o.Exchange, o.UserID, o.Test, req, func(gw exchange.Gateway, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
		return gw.SendEntryOrder(ctx, creds, req)
	})
	if !res.OK {
		switch res.Code {
		case exchange.CodeInsufficientBalance:
			logger.Warnf("engine: order %d: insufficient balance, cancelling plan group %s", o.ID, o.GroupID)
			t.setStatus(o, types.StatusCancelled)
			t.cascadeGroup(o, types.StatusCancelled)
			t.e.sink.Capture("engine.entry", fmt.Errorf("insufficient balance: %s", res.Message), map[string]any{
				"order_id": o.ID, "user_id": o.UserID, "symbol": o.Symbol,
			})
		case exchange.CodeMinNotional:
			logger.Warnf("engine: order %d: below exchange minimum, cancelling leg: %s", o.ID, res.Message)
			t.setStatus(o, types.StatusCancelled)
		default:
			logger.Warnf("engine: order %d: entry send failed (%s): %s, retrying next tick",
				o.ID, res.Code, res.Message)
		}
		return
	}
	t.fillEntry(ctx, o, price)
}

// fillEntry folds a filled entry leg into its position, creating the
// position on the first fill, and promotes the pending siblings to live.
func (t *tick) fillEntry(ctx context.Context, o *model.Order, fillPrice float64) {
	t.setStatus(o, types.StatusExecuted)

	pos, created, err := t.position(ctx, o)
	if err != nil {
		logger.Errorf("engine: order %d filled but position bookkeeping failed: %v", o.ID, err)
		t.e.sink.Capture("engine.fill", err, map[string]any{"order_id": o.ID})
		return
	}

	pos.AvgEntry = trading.VWAP(pos.AvgEntry, pos.Size, fillPrice, o.Size)
	pos.Size += o.Size
	pos.InitialSize += o.Size
	if o.Leverage > 0 {
		pos.Leverage = o.Leverage
	}
	if o.Stoploss > 0 {
		pos.Stoploss = o.Stoploss
	}
	if pos.Isolated {
		pos.LiqEstimate = trading.LiquidationEstimate(pos.AvgEntry, pos.Leverage, pos.Side)
	}
	t.markPosition(pos)

	o.PositionID = &pos.ID
	t.markOrder(o)

	for _, sib := range t.siblings(o) {
		switch {
		case sib.Status == types.StatusPending:
			t.setStatus(sib, types.StatusOpen)
			sib.PositionID = &pos.ID
		case !sib.Status.Terminal() && sib.PositionID == nil:
			sib.PositionID = &pos.ID
			t.markOrder(sib)
		}
	}

	if created {
		text := fmt.Sprintf("Position opened: %s %s user=%d size=%.8f entry=%.8f lev=%dx",
			pos.Symbol, pos.Side, pos.UserID, pos.Size, pos.AvgEntry, pos.Leverage)
		if err := t.e.notify.SendText(text); err != nil {
			logger.Debugf("engine: notify failed: %v", err)
		}
	}
}

// position resolves the open position a filled entry belongs to, creating
// and persisting a fresh one when none exists yet.
func (t *tick) position(ctx context.Context, o *model.Order) (*model.Position, bool, error) {
	key := posKey{userID: o.UserID, symbol: o.Symbol, side: o.Side}
	if pos, ok := t.posByKey[key]; ok && pos.Status == types.PositionOpen {
		return pos, false, nil
	}

	// A concurrent tick may have created it after our load.
	row, found, err := t.e.store.OpenPosition(ctx, o.UserID, o.Symbol, o.Side)
	if err != nil {
		return nil, false, err
	}
	if found {
		pos := &row
		t.positions = append(t.positions, pos)
		t.index(pos)
		return pos, false, nil
	}

	pos := &model.Position{
		UserID:       o.UserID,
		Exchange:     o.Exchange,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Leverage:     o.Leverage,
		Isolated:     o.Isolated,
		Test:         o.Test,
		Status:       types.PositionOpen,
		OpenedAtUnix: t.now.Unix(),
	}
	if err := t.e.store.InsertPosition(ctx, pos); err != nil {
		return nil, false, err
	}
	t.positions = append(t.positions, pos)
	t.index(pos)
	return pos, true, nil
}

func (t *tick) linkedPosition(o *model.Order) *model.Position {
	if o.PositionID == nil {
		return nil
	}
	return t.posByID[*o.PositionID]
}

// executeFullClose fires a stoploss or moonbag leg: close everything the
// position still holds, then retire the position and its sibling legs.
func (t *tick) executeFullClose(ctx context.Context, o *model.Order, price float64) {
	pos := t.linkedPosition(o)
	if pos == nil || pos.Status != types.PositionOpen {
		// Nothing left to close; the position went away under us.
		t.setStatus(o, types.StatusClosed)
		return
	}
	req := exchange.OrderRequest{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Kind:       o.Kind,
		Price:      o.Price,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
		Isolated:   pos.Isolated,
		ReduceOnly: true,
	}
	res := t.send(ctx, o.Exchange, o.UserID, o.Test, req, func(gw exchange.Gateway, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
		return gw.SendStoplossOrder(ctx, creds, req)
	})
	if !res.OK && res.Code != exchange.CodeNoPosition {
		logger.Warnf("engine: order %d: close send failed (%s): %s, retrying next tick",
			o.ID, res.Code, res.Message)
		return
	}
	if res.Code == exchange.CodeNoPosition {
		// Venue already flat; settle the books without a fill.
		t.setStatus(o, types.StatusClosed)
	} else {
		t.setStatus(o, types.StatusExecuted)
	}
	pos.Size = 0
	t.closePosition(pos)
}

// executeTakeProfit shrinks the position by the leg's share of its current
// size and, when configured, moves the stoploss to breakeven.
func (t *tick) executeTakeProfit(ctx context.Context, o *model.Order, price float64) {
	pos := t.linkedPosition(o)
	if pos == nil || pos.Status != types.PositionOpen {
		t.setStatus(o, types.StatusClosed)
		return
	}
	closeSize := trading.CalcCloseAmount(pos.Size, 0, o.SizePct/100)
	if closeSize <= 0 {
		t.setStatus(o, types.StatusClosed)
		return
	}
	req := exchange.OrderRequest{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Kind:       o.Kind,
		Price:      o.Price,
		Size:       closeSize,
		Leverage:   pos.Leverage,
		Isolated:   pos.Isolated,
		ReduceOnly: true,
	}
	res := t.send(ctx, o.Exchange, o.UserID, o.Test, req, func(gw exchange.Gateway, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
		return gw.SendTakeProfitOrder(ctx, creds, req)
	})
	if !res.OK {
		if res.Code == exchange.CodeNoPosition {
			t.setStatus(o, types.StatusClosed)
			pos.Size = 0
			t.closePosition(pos)
			return
		}
		logger.Warnf("engine: order %d: take-profit send failed (%s): %s, retrying next tick",
			o.ID, res.Code, res.Message)
		return
	}

	t.setStatus(o, types.StatusExecuted)
	pos.Size -= closeSize
	t.markPosition(pos)
	logger.Infof("engine: take-profit %d hit on %s, closed %.8f, remaining %.8f",
		o.KindIndex, o.Symbol, closeSize, pos.Size)

	if o.MoveStop {
		t.moveStopToBreakeven(o, pos)
	}
	if o.SizePct >= 100 || pos.Size <= sizeEpsilon {
		pos.Size = 0
		t.closePosition(pos)
	}
}

// moveStopToBreakeven rewrites the live stoploss sibling to the average
// entry and abandons the remaining averaging entries; the position cannot
// lose from here.
func (t *tick) moveStopToBreakeven(o *model.Order, pos *model.Position) {
	for _, sib := range t.siblings(o) {
		if sib.Status.Terminal() {
			continue
		}
		switch sib.Kind {
		case types.KindStoploss:
			sib.Price = pos.AvgEntry
			t.markOrder(sib)
			pos.Stoploss = pos.AvgEntry
			t.markPosition(pos)
			logger.Infof("engine: moved stoploss of %s to breakeven %.8f", pos.Symbol, pos.AvgEntry)
		case types.KindDCA:
			t.setStatus(sib, types.StatusCancelled)
		}
	}
}

// liquidate closes an isolated position whose estimated liquidation
// price was crossed. The exchange enforces its own trigger;
// this keeps the books from drifting when it already fired.
func (t *tick) liquidate(ctx context.Context, p *model.Position, price float64) {
	logger.Warnf("engine: position %d (%s %s) crossed estimated liquidation %.8f at %.8f, closing",
		p.ID, p.Symbol, p.Side, p.LiqEstimate, price)
	if !p.Test {
		req := exchange.OrderRequest{
			Symbol:     p.Symbol,
			Side:       p.Side,
			Kind:       types.KindStoploss,
			Size:       p.Size,
			Leverage:   p.Leverage,
			Isolated:   true,
			ReduceOnly: true,
		}
		res := t.send(ctx, p.Exchange, p.UserID, false, req, func(gw exchange.Gateway, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
			return gw.SendStoplossOrder(ctx, creds, req)
		})
		if !res.OK && res.Code != exchange.CodeNoPosition {
			logger.Warnf("engine: position %d: liquidation close failed (%s): %s, retrying next tick",
				p.ID, res.Code, res.Message)
			return
		}
	}
	p.Size = 0
	t.closePosition(p)
}
