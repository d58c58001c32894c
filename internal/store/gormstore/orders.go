package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sigtrade/internal/logger"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// ErrVersionConflict signals a lost optimistic-concurrency race: someone
// else wrote the row since it was loaded.
var ErrVersionConflict = errors.New("version conflict")

const casRetryAttempts = 3
const casRetryDelay = 200 * time.Millisecond

// CreatePlanGroup inserts every order of one (signal, user) plan inside a
// single transaction. A failure rolls the whole group back so a user never
// ends up with half a plan.
func (s *GormStore) CreatePlanGroup(ctx context.Context, orders []model.Order) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range orders {
			if orders[i].CreatedAtUnix == 0 {
				orders[i].CreatedAtUnix = now
			}
			if err := tx.Create(&orders[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// OpenOrders loads every order the tick must evaluate.
func (s *GormStore) OpenOrders(ctx context.Context) ([]model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []model.Order
	err := s.db.WithContext(ctx).
		Where("status IN ?", []types.OrderStatus{types.StatusOpen, types.StatusPending}).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OrdersBySignalUser loads the full plan group for one (signal, user).
func (s *GormStore) OrdersBySignalUser(ctx context.Context, signalID, userID int64) ([]model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []model.Order
	err := s.db.WithContext(ctx).
		Where("signal_id = ? AND user_id = ?", signalID, userID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OrdersByPosition loads every leg linked to one position.
func (s *GormStore) OrdersByPosition(ctx context.Context, positionID int64) ([]model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []model.Order
	err := s.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OrdersByStatus lists orders in one lifecycle state, newest first.
func (s *GormStore) OrdersByStatus(ctx context.Context, status types.OrderStatus, limit int) ([]model.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var rows []model.Order
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OpenPositions loads every position still marked open.
func (s *GormStore) OpenPositions(ctx context.Context) ([]model.Position, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []model.Position
	err := s.db.WithContext(ctx).
		Where("status = ?", types.PositionOpen).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OpenPosition finds the at-most-one open position for (user, symbol, side).
func (s *GormStore) OpenPosition(ctx context.Context, userID int64, symbol string, side types.Side) (model.Position, bool, error) {
	var row model.Position
	if err := s.ready(); err != nil {
		return row, false, err
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND side = ? AND status = ?",
			userID, symbol, side, types.PositionOpen).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

// InsertPosition creates a new position row (version starts at 0).
func (s *GormStore) InsertPosition(ctx context.Context, pos *model.Position) error {
	if err := s.ready(); err != nil {
		return err
	}
	if pos.OpenedAtUnix == 0 {
		pos.OpenedAtUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(pos).Error
}

// SaveTick flushes one tick's changeset in a single transaction. Every row
// is written compare-and-swap on its version token; a conflicting position
// that turns out to be already closed is dropped rather than overwritten,
// any other conflict is retried a bounded number of times and then
// surfaced.
func (s *GormStore) SaveTick(ctx context.Context, orders []model.Order, positions []model.Position) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(orders) == 0 && len(positions) == 0 {
		return nil
	}
	flush := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range orders {
				if err := casUpdateOrder(tx, &orders[i]); err != nil {
					return err
				}
			}
			for i := range positions {
				if err := casUpdatePosition(tx, &positions[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}

	var err error
	for attempt := 0; attempt < casRetryAttempts; attempt++ {
		err = flush()
		if err == nil {
			// Version tokens advance only once the transaction commits;
			// a rollback leaves every in-memory row at the version it
			// was loaded with.
			for i := range orders {
				orders[i].Version++
			}
			for i := range positions {
				positions[i].Version++
			}
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		orders, positions, err = s.resolveConflicts(ctx, orders, positions)
		if err != nil {
			return err
		}
		if len(orders) == 0 && len(positions) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(casRetryDelay):
		}
	}
	return fmt.Errorf("tick flush: %w", err)
}

func casUpdateOrder(tx *gorm.DB, o *model.Order) error {
	res := tx.Model(&model.Order{}).
		Where("id = ? AND version = ?", o.ID, o.Version).
		Updates(map[string]interface{}{
			"status":      o.Status,
			"price":       o.Price,
			"stoploss":    o.Stoploss,
			"size":        o.Size,
			"position_id": o.PositionID,
			"closed_at":   o.ClosedAtUnix,
			"version":     o.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d: %w", o.ID, ErrVersionConflict)
	}
	return nil
}

func casUpdatePosition(tx *gorm.DB, p *model.Position) error {
	res := tx.Model(&model.Position{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"avg_entry":    p.AvgEntry,
			"size":         p.Size,
			"initial_size": p.InitialSize,
			"leverage":     p.Leverage,
			"stoploss":     p.Stoploss,
			"liq_estimate": p.LiqEstimate,
			"roi_pct":      p.ROIPct,
			"status":       p.Status,
			"closed_at":    p.ClosedAtUnix,
			"version":      p.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("position %d: %w", p.ID, ErrVersionConflict)
	}
	return nil
}

// resolveConflicts reloads every pending row and decides, per entity,
// whether its update should survive the retry. A position that another tick
// already closed drops out of the changeset entirely: late updates must not
// resurrect it.
func (s *GormStore) resolveConflicts(ctx context.Context, orders []model.Order, positions []model.Position) ([]model.Order, []model.Position, error) {
	keptOrders := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		var current model.Order
		err := s.db.WithContext(ctx).Where("id = ?", o.ID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if current.Version == o.Version {
			keptOrders = append(keptOrders, o)
			continue
		}
		if current.Status.Terminal() {
			logger.Debugf("store: dropping stale update for terminal order id=%d status=%s", current.ID, current.Status)
			continue
		}
		// Same-status rewrites (breakeven price moves, position links)
		// rebase like forward transitions; only backward moves are lost.
		if current.Status != o.Status && !types.CanTransition(current.Status, o.Status) {
			logger.Warnf("store: conflicting order update rejected id=%d %s -> %s", current.ID, current.Status, o.Status)
			continue
		}
		o.Version = current.Version
		keptOrders = append(keptOrders, o)
	}

	keptPositions := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		var current model.Position
		err := s.db.WithContext(ctx).Where("id = ?", p.ID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if current.Version == p.Version {
			keptPositions = append(keptPositions, p)
			continue
		}
		if current.Status == types.PositionClosed {
			logger.Debugf("store: dropping update for already closed position id=%d", current.ID)
			continue
		}
		p.Version = current.Version
		keptPositions = append(keptPositions, p)
	}
	return keptOrders, keptPositions, nil
}
