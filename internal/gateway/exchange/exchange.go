// Package exchange defines the common gateway abstraction the engine trades
// through. Each exchange variant normalizes its native error codes, margin
// modes and rate-limit behavior behind this one contract so the reconcile
// loop never branches on a venue.
package exchange

import (
	"context"
	"errors"
	"time"

	"sigtrade/internal/types"
)

// ErrUnsupported marks a capability a partial gateway does not implement.
// The bybit variant exposes balance and price only.
var ErrUnsupported = errors.New("capability not supported by this gateway")

// Credentials are the per-user API keys a call is signed with.
type Credentials struct {
	Key    string
	Secret string
}

// Balance is the available quote-currency balance of one account.
type Balance struct {
	Asset     string
	Available float64
	Total     float64
	UpdatedAt time.Time
}

// PriceQuote is one last-price observation.
type PriceQuote struct {
	Symbol    string
	Last      float64
	UpdatedAt time.Time
}

// OrderRequest carries everything a gateway needs to place one leg.
type OrderRequest struct {
	Symbol     string
	Side       types.Side
	Kind       types.OrderKind
	Price      float64
	Size       float64
	Leverage   int
	Isolated   bool
	ReduceOnly bool
}

// ErrCode is the coarse error taxonomy the engine switches on. Gateways map
// exchange-native codes into it; anything unmapped becomes CodeUnknown with
// the raw message preserved.
type ErrCode int

const (
	CodeOK ErrCode = iota
	CodeRateLimited
	CodeMinNotional
	CodeInsufficientBalance
	CodeNoPosition
	CodeUnknown
)

func (c ErrCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeRateLimited:
		return "rate_limited"
	case CodeMinNotional:
		return "min_notional"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeNoPosition:
		return "no_position"
	default:
		return "unknown"
	}
}

// OrderResult is the only shape the reconcile loop ever inspects after a
// trade call.
type OrderResult struct {
	OK      bool
	Code    ErrCode
	Message string
	Raw     string // raw gateway payload, kept for logs
}

// Failed builds an error result.
func Failed(code ErrCode, message, raw string) OrderResult {
	return OrderResult{OK: false, Code: code, Message: message, Raw: raw}
}

// Succeeded builds a success result.
func Succeeded(raw string) OrderResult {
	return OrderResult{OK: true, Code: CodeOK, Raw: raw}
}

// Gateway is the per-exchange capability set. Trade calls must retry up to
// 3 attempts with a 5 second pause on a rate-limit response and always
// return a normalized OrderResult; they never panic across this boundary.
type Gateway interface {
	Name() string

	GetBalance(ctx context.Context, creds Credentials) (Balance, error)

	GetPrice(ctx context.Context, symbol string) (PriceQuote, error)

	GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error)

	SendEntryOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult

	SendTakeProfitOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult

	SendStoplossOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult
}
