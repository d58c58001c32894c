package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"sigtrade/internal/types"
)

// ToDomain converts the stored signal into the immutable domain record.
func (s Signal) ToDomain() types.Signal {
	var targets []float64
	if len(s.TargetsJSON) > 0 {
		_ = json.Unmarshal(s.TargetsJSON, &targets)
	}
	return types.Signal{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		Symbol:     s.Symbol,
		Side:       s.Side,
		Leverage:   s.Leverage,
		Entry:      s.Entry,
		Stoploss:   s.Stoploss,
		Targets:    targets,
		CreatedAt:  time.Unix(s.CreatedAtUnix, 0),
	}
}

// NewSignal builds the persisted form of a domain signal.
func NewSignal(sig types.Signal) Signal {
	raw, _ := json.Marshal(sig.Targets)
	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return Signal{
		ID:            sig.ID,
		ProviderID:    sig.ProviderID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Leverage:      sig.Leverage,
		Entry:         sig.Entry,
		Stoploss:      sig.Stoploss,
		TargetsJSON:   datatypes.JSON(raw),
		CreatedAtUnix: createdAt.Unix(),
	}
}

// ToDomain converts a settings row into the planner's view of it.
func (s Settings) ToDomain() types.ProviderSettings {
	var dist []float64
	if len(s.TPDistributionJSON) > 0 {
		_ = json.Unmarshal(s.TPDistributionJSON, &dist)
	}
	return types.ProviderSettings{
		UserID:           s.UserID,
		ProviderID:       s.ProviderID,
		Exchange:         s.Exchange,
		Enabled:          s.Enabled,
		IgnoreLong:       s.IgnoreLong,
		IgnoreShort:      s.IgnoreShort,
		IgnoreStoploss:   s.IgnoreStoploss,
		Testing:          s.Testing,
		RiskPct:          s.RiskPct,
		LeverageOverride: s.LeverageOverride,
		MinUSD:           s.MinUSD,
		MaxUSD:           s.MaxUSD,
		Isolated:         s.Isolated,
		StopPct:          s.StopPct,
		TPDistribution:   dist,
		Moonbag: types.MoonbagSettings{
			Enabled:          s.MoonbagEnabled,
			Pct:              s.MoonbagPct,
			TriggerOffsetPct: s.MoonbagOffsetPct,
		},
		MoveStopOnTPIndex: s.MoveStopOnTPIndex,
	}
}
