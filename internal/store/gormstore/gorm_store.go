// Package gormstore persists signals, orders, positions and settings using
// Gorm + SQLite. All engine writes flow through the per-tick changeset flush
// in SaveTick; plan groups are inserted all-or-nothing per user.
package gormstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// GormStore implements the engine's storage contract over a single SQLite
// file.
type GormStore struct {
	db *gorm.DB
}

// Open initializes the store and migrates the schema.
func Open(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.Signal{},
		&model.Order{},
		&model.Position{},
		&model.Settings{},
		&model.PriceCache{},
		&model.Event{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for admin API reads while the
	// engine holds its tick transaction.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

func (s *GormStore) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	return nil
}

// ---------------------------- Signals ----------------------------

func (s *GormStore) InsertSignal(ctx context.Context, sig *model.Signal) error {
	if err := s.ready(); err != nil {
		return err
	}
	if sig.CreatedAtUnix == 0 {
		sig.CreatedAtUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(sig).Error
}

func (s *GormStore) SignalByID(ctx context.Context, id int64) (model.Signal, error) {
	var sig model.Signal
	if err := s.ready(); err != nil {
		return sig, err
	}
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sig).Error
	return sig, err
}

// ---------------------------- Settings ----------------------------

// ActiveSettings lists the enabled subscriptions for one provider; the
// planner fans out across them.
func (s *GormStore) ActiveSettings(ctx context.Context, providerID int64) ([]model.Settings, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []model.Settings
	err := s.db.WithContext(ctx).
		Where("provider_id = ? AND enabled = ?", providerID, true).
		Order("user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CredentialsFor returns the API credentials a user configured for an
// exchange. When the user has several enabled subscriptions on the same
// exchange the oldest one wins.
func (s *GormStore) CredentialsFor(ctx context.Context, userID int64, ex types.Exchange) (exchange.Credentials, error) {
	var creds exchange.Credentials
	if err := s.ready(); err != nil {
		return creds, err
	}
	var row model.Settings
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND exchange = ? AND enabled = ?", userID, ex, true).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		return creds, fmt.Errorf("credentials for user %d on %s: %w", userID, ex, err)
	}
	creds.Key = row.APIKey
	creds.Secret = row.APISecret
	return creds, nil
}

func (s *GormStore) UpsertSettings(ctx context.Context, row *model.Settings) error {
	if err := s.ready(); err != nil {
		return err
	}
	now := time.Now().Unix()
	if row.CreatedAtUnix == 0 {
		row.CreatedAtUnix = now
	}
	row.UpdatedAtUnix = now
	return s.db.WithContext(ctx).Save(row).Error
}

// ---------------------------- Price cache ----------------------------

func (s *GormStore) CachedPrice(ctx context.Context, symbol string) (model.PriceCache, error) {
	var row model.PriceCache
	if err := s.ready(); err != nil {
		return row, err
	}
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&row).Error
	return row, err
}

func (s *GormStore) PutPrice(ctx context.Context, symbol string, price float64) error {
	if err := s.ready(); err != nil {
		return err
	}
	row := model.PriceCache{Symbol: symbol, Price: price, UpdatedAtUnix: time.Now().Unix()}
	return s.db.WithContext(ctx).Save(&row).Error
}

// ---------------------------- Events ----------------------------

func (s *GormStore) AppendEvent(ctx context.Context, ev *model.Event) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ev.CreatedAtUnix == 0 {
		ev.CreatedAtUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}
