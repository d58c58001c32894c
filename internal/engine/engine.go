// Package engine runs the reconciliation loop. Each tick loads the open
// orders and positions, fetches fresh prices, evaluates every trigger,
// dispatches the fills through the exchange gateways and flushes all state
// changes in one optimistic-concurrency batch.
package engine

import (
	"context"
	"time"

	"sigtrade/internal/errsink"
	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/notifier"
	"sigtrade/internal/oracle"
	"sigtrade/internal/scheduler"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// Store is the persistence slice the reconcile loop needs.
type Store interface {
	OpenOrders(ctx context.Context) ([]model.Order, error)
	OpenPositions(ctx context.Context) ([]model.Position, error)
	OpenPosition(ctx context.Context, userID int64, symbol string, side types.Side) (model.Position, bool, error)
	InsertPosition(ctx context.Context, pos *model.Position) error
	SaveTick(ctx context.Context, orders []model.Order, positions []model.Position) error
	CredentialsFor(ctx context.Context, userID int64, ex types.Exchange) (exchange.Credentials, error)
}

// Prices is the oracle slice the loop consumes.
type Prices interface {
	FetchSymbols(ctx context.Context, symbols []string) (map[string]oracle.Quote, []string)
}

const (
	// Entry and DCA legs untouched for this long are abandoned.
	staleEntryAfter = 24 * time.Hour

	// Entry and DCA legs fill within this percentage band of the trigger.
	entryBandPct = 0.5

	tickTimeout = 90 * time.Second
)

type Engine struct {
	store    Store
	prices   Prices
	registry *exchange.Registry
	sink     *errsink.Sink
	notify   notifier.TextNotifier

	Interval       time.Duration
	RunImmediately bool

	sched *scheduler.IntervalScheduler
	nowFn func() time.Time
}

func New(store Store, prices Prices, registry *exchange.Registry, sink *errsink.Sink, notify notifier.TextNotifier, interval time.Duration) *Engine {
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Engine{
		store:    store,
		prices:   prices,
		registry: registry,
		sink:     sink,
		notify:   notify,
		Interval: interval,
		nowFn:    time.Now,
	}
}

// Run blocks and reconciles on the configured interval until ctx is done.
// RunTick stays safe to invoke concurrently (API-triggered ticks): the
// version checks in SaveTick make racing ticks lose cleanly, never corrupt.
func (e *Engine) Run(ctx context.Context) {
	sched := scheduler.NewIntervalScheduler(ctx, "reconcile", e.Interval)
	sched.RunImmediately = e.RunImmediately
	e.sched = sched
	sched.Start(func() {
		tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		if err := e.RunTick(tickCtx); err != nil {
			logger.Errorf("engine: tick failed: %v", err)
			e.sink.Capture("engine.tick", err, nil)
		}
	})
}

// SetInterval applies a new tick interval from the next cycle. Safe to
// call while Run is active.
func (e *Engine) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	e.Interval = interval
	if e.sched != nil {
		e.sched.SetInterval(interval)
	}
}
