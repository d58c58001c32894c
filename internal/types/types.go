// Package types holds the closed domain enumerations and the immutable
// records shared by the planner, the reconcile engine and the gateways.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Side of a trade or position.
type Side int

const (
	SideUnknown Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "unknown"
	}
}

// Opposite returns the mirrored side; unknown stays unknown.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideUnknown
	}
}

func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	default:
		return SideUnknown, fmt.Errorf("invalid side: %q", raw)
	}
}

// Exchange identifies a supported exchange variant. Gateways are registered
// against these values once at startup; no string ids travel through the
// engine.
type Exchange int

const (
	ExchangeUnknown Exchange = iota
	ExchangeBinance
	ExchangeGate
	ExchangeBybit
)

func (e Exchange) String() string {
	switch e {
	case ExchangeBinance:
		return "binance"
	case ExchangeGate:
		return "gateio"
	case ExchangeBybit:
		return "bybit"
	default:
		return "unknown"
	}
}

func ParseExchange(raw string) (Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "binance", "binance-futures":
		return ExchangeBinance, nil
	case "gate", "gateio", "gate.io":
		return ExchangeGate, nil
	case "bybit":
		return ExchangeBybit, nil
	default:
		return ExchangeUnknown, fmt.Errorf("invalid exchange: %q", raw)
	}
}

// Signal is one trade idea as accepted by intake. It is immutable once
// stored; the planner only ever reads it.
type Signal struct {
	ID         int64
	ProviderID int64
	Symbol     string
	Side       Side
	Leverage   int
	Entry      float64
	Stoploss   float64 // 0 when the provider gave none
	Targets    []float64
	CreatedAt  time.Time
}

// MoonbagSettings controls the residual leg kept beyond the final target.
type MoonbagSettings struct {
	Enabled          bool
	Pct              float64 // share of total size reserved for the moonbag
	TriggerOffsetPct float64 // trigger distance beyond the last take-profit
}

// ProviderSettings is the per user x provider subscription contract. One row
// exists per subscription; the planner fans out across all enabled rows.
type ProviderSettings struct {
	UserID     int64
	ProviderID int64
	Exchange   Exchange

	Enabled        bool
	IgnoreLong     bool
	IgnoreShort    bool
	IgnoreStoploss bool
	Testing        bool

	RiskPct          float64 // % of balance put at stake per signal
	LeverageOverride int     // 0 keeps the signal's leverage
	MinUSD           float64
	MaxUSD           float64
	Isolated         bool
	StopPct          float64 // fallback stop distance when the signal has none

	// TPDistribution holds take-profit size percentages, one entry per
	// expected target; missing entries count as zero.
	TPDistribution []float64
	Moonbag        MoonbagSettings

	// MoveStopOnTPIndex rewrites the stoploss to breakeven once the
	// take-profit leg with this 1-based index fills. 0 disables.
	MoveStopOnTPIndex int
}

// Ignores reports whether this subscription skips signals on the given side.
func (p ProviderSettings) Ignores(side Side) bool {
	switch side {
	case SideLong:
		return p.IgnoreLong
	case SideShort:
		return p.IgnoreShort
	default:
		return true
	}
}

// ExchangePrecision carries the per-symbol trading constraints a gateway
// reports for its exchange.
type ExchangePrecision struct {
	MinNotional float64
	PriceStep   float64
	AmountStep  float64
	MinLeverage int
	MaxLeverage int
}

// ClampLeverage bounds lev into the exchange's allowed range.
func (p ExchangePrecision) ClampLeverage(lev int) int {
	if p.MinLeverage > 0 && lev < p.MinLeverage {
		lev = p.MinLeverage
	}
	if p.MaxLeverage > 0 && lev > p.MaxLeverage {
		lev = p.MaxLeverage
	}
	return lev
}
