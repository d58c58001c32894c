// Package model defines the persisted records. Status columns are the
// int-typed enums from internal/types; timestamps are stored as unix
// seconds.
package model

import (
	"time"

	"gorm.io/datatypes"

	"sigtrade/internal/types"
)

// Signal is an accepted trade call, immutable once written.
type Signal struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	ProviderID    int64          `gorm:"column:provider_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Side          types.Side     `gorm:"column:side"`
	Leverage      int            `gorm:"column:leverage"`
	Entry         float64        `gorm:"column:entry"`
	Stoploss      float64        `gorm:"column:stoploss"`
	TargetsJSON   datatypes.JSON `gorm:"column:targets;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (Signal) TableName() string { return "signals" }

// Order is one leg of a plan group. Version is the optimistic-concurrency
// token bumped on every write.
type Order struct {
	ID            int64             `gorm:"column:id;primaryKey"`
	GroupID       string            `gorm:"column:group_id;index"`
	SignalID      int64             `gorm:"column:signal_id;index"`
	UserID        int64             `gorm:"column:user_id;index"`
	Exchange      types.Exchange    `gorm:"column:exchange"`
	Symbol        string            `gorm:"column:symbol;index"`
	Side          types.Side        `gorm:"column:side"`
	Kind          types.OrderKind   `gorm:"column:kind"`
	KindIndex     int               `gorm:"column:kind_index"` // 1-based for dca/tp legs
	Price         float64           `gorm:"column:price"`      // trigger price
	Stoploss      float64           `gorm:"column:stoploss"`
	Size          float64           `gorm:"column:size"`
	SizePct       float64           `gorm:"column:size_pct"` // exit legs: % of position closed
	Leverage      int               `gorm:"column:leverage"`
	Isolated      bool              `gorm:"column:isolated"`
	Test          bool              `gorm:"column:test"`
	MoveStop      bool              `gorm:"column:move_stop"` // TP leg moves stoploss to entry
	Status        types.OrderStatus `gorm:"column:status;index"`
	PositionID    *int64            `gorm:"column:position_id;index"`
	CreatedAtUnix int64             `gorm:"column:created_at"`
	ClosedAtUnix  *int64            `gorm:"column:closed_at"`
	Version       int64             `gorm:"column:version"`
}

func (Order) TableName() string { return "orders" }

// CreatedAt is the creation instant as time.Time.
func (o Order) CreatedAt() time.Time { return time.Unix(o.CreatedAtUnix, 0) }

// Position aggregates the filled entry legs of one (user, symbol, side).
type Position struct {
	ID           int64                `gorm:"column:id;primaryKey"`
	UserID       int64                `gorm:"column:user_id;index"`
	Exchange     types.Exchange       `gorm:"column:exchange"`
	Symbol       string               `gorm:"column:symbol;index"`
	Side         types.Side           `gorm:"column:side"`
	AvgEntry     float64              `gorm:"column:avg_entry"`
	Size         float64              `gorm:"column:size"`
	InitialSize  float64              `gorm:"column:initial_size"`
	Leverage     int                  `gorm:"column:leverage"`
	Stoploss     float64              `gorm:"column:stoploss"`
	LiqEstimate  float64              `gorm:"column:liq_estimate"`
	ROIPct       float64              `gorm:"column:roi_pct"`
	Isolated     bool                 `gorm:"column:isolated"`
	Test         bool                 `gorm:"column:test"`
	Status       types.PositionStatus `gorm:"column:status;index"`
	OpenedAtUnix int64                `gorm:"column:opened_at"`
	ClosedAtUnix *int64               `gorm:"column:closed_at"`
	Version      int64                `gorm:"column:version"`
}

func (Position) TableName() string { return "positions" }

// Settings is one user x provider subscription row, including the exchange
// credentials the gateways trade with.
type Settings struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	UserID     int64          `gorm:"column:user_id;uniqueIndex:idx_user_provider,priority:1"`
	ProviderID int64          `gorm:"column:provider_id;uniqueIndex:idx_user_provider,priority:2"`
	Exchange   types.Exchange `gorm:"column:exchange"`

	Enabled        bool `gorm:"column:enabled"`
	IgnoreLong     bool `gorm:"column:ignore_long"`
	IgnoreShort    bool `gorm:"column:ignore_short"`
	IgnoreStoploss bool `gorm:"column:ignore_stoploss"`
	Testing        bool `gorm:"column:testing"`

	RiskPct          float64 `gorm:"column:risk_pct"`
	LeverageOverride int     `gorm:"column:leverage_override"`
	MinUSD           float64 `gorm:"column:min_usd"`
	MaxUSD           float64 `gorm:"column:max_usd"`
	Isolated         bool    `gorm:"column:isolated"`
	StopPct          float64 `gorm:"column:stop_pct"`

	TPDistributionJSON datatypes.JSON `gorm:"column:tp_distribution;type:TEXT"`
	MoonbagEnabled     bool           `gorm:"column:moonbag_enabled"`
	MoonbagPct         float64        `gorm:"column:moonbag_pct"`
	MoonbagOffsetPct   float64        `gorm:"column:moonbag_offset_pct"`
	MoveStopOnTPIndex  int            `gorm:"column:move_stop_on_tp_index"`

	APIKey    string `gorm:"column:api_key"`
	APISecret string `gorm:"column:api_secret"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`
}

func (Settings) TableName() string { return "provider_settings" }

// PriceCache is the last known cross-exchange aggregate price per symbol,
// the fallback when live fetches fail during a tick.
type PriceCache struct {
	Symbol        string  `gorm:"column:symbol;primaryKey"`
	Price         float64 `gorm:"column:price"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (PriceCache) TableName() string { return "price_cache" }

// Event is one structured error-sink row.
type Event struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_id;uniqueIndex"`
	Source        string         `gorm:"column:source;index"`
	Message       string         `gorm:"column:message"`
	Stack         string         `gorm:"column:stack"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (Event) TableName() string { return "events" }
