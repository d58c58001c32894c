package planner

import (
	"context"
	"errors"
	"time"

	"sigtrade/internal/errsink"
	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// Store is the persistence slice the fan-out needs.
type Store interface {
	ActiveSettings(ctx context.Context, providerID int64) ([]model.Settings, error)
	CreatePlanGroup(ctx context.Context, orders []model.Order) error
}

// PrecisionSource resolves per-exchange trading constraints.
type PrecisionSource interface {
	Precision(ctx context.Context, ex types.Exchange, symbol string) (types.ExchangePrecision, error)
}

// Service fans one signal out across every subscribed user. Each user's
// plan group is persisted in its own transaction so a single failure never
// blocks the rest of the fan-out.
type Service struct {
	store     Store
	registry  *exchange.Registry
	precision PrecisionSource
	sink      *errsink.Sink

	// TestingNotional substitutes for a live balance when a subscription
	// runs in testing mode.
	TestingNotional float64
}

func NewService(store Store, registry *exchange.Registry, precision PrecisionSource, sink *errsink.Sink) *Service {
	return &Service{
		store:           store,
		registry:        registry,
		precision:       precision,
		sink:            sink,
		TestingNotional: 1000,
	}
}

// FanOut generates and persists a plan group per active subscription.
// Returns the number of users that got a plan.
func (s *Service) FanOut(ctx context.Context, sig types.Signal) (int, error) {
	settingsRows, err := s.store.ActiveSettings(ctx, sig.ProviderID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, row := range settingsRows {
		if err := s.planUser(ctx, sig, row); err != nil {
			if isSkip(err) {
				logger.Infof("planner: skip user=%d signal=%d: %v", row.UserID, sig.ID, err)
				continue
			}
			logger.Errorf("planner: user=%d signal=%d failed: %v", row.UserID, sig.ID, err)
			s.sink.Capture("planner", err, map[string]any{
				"user_id":   row.UserID,
				"signal_id": sig.ID,
				"symbol":    sig.Symbol,
			})
			continue
		}
		created++
	}
	return created, nil
}

func (s *Service) planUser(ctx context.Context, sig types.Signal, row model.Settings) error {
	set := row.ToDomain()
	if !set.Enabled || set.Ignores(sig.Side) {
		return ErrSideIgnored
	}
	if set.Exchange == types.ExchangeUnknown {
		return ErrNoExchange
	}

	prec, err := s.precision.Precision(ctx, set.Exchange, sig.Symbol)
	if err != nil {
		return errors.Join(ErrNoPrecision, err)
	}

	balance := s.TestingNotional
	if !set.Testing {
		balance, err = s.fetchBalance(ctx, set.Exchange, row)
		if err != nil {
			return err
		}
	}

	plan, err := BuildPlan(sig, set, prec, balance, time.Now())
	if err != nil {
		return err
	}
	return s.store.CreatePlanGroup(ctx, plan.Orders)
}

func (s *Service) fetchBalance(ctx context.Context, ex types.Exchange, row model.Settings) (float64, error) {
	var balance float64
	err := s.registry.Call(ex, func(gw exchange.Gateway) error {
		b, err := gw.GetBalance(ctx, exchange.Credentials{Key: row.APIKey, Secret: row.APISecret})
		if err != nil {
			return err
		}
		balance = b.Available
		return nil
	})
	return balance, err
}

// isSkip reports whether the error is one of the expected per-user skip
// reasons rather than a real failure.
func isSkip(err error) bool {
	for _, skip := range []error{
		ErrSideIgnored, ErrNoBalance, ErrZeroSize,
		ErrBelowMinimum, ErrNoExchange, ErrNoPrecision,
	} {
		if errors.Is(err, skip) {
			return true
		}
	}
	return false
}
