package gate

import (
	"context"
	"errors"
	"strings"
	"time"

	gateapi "github.com/gateio/gateapi-go/v7"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/pkg/retry"
)

const (
	tradeAttempts  = 3
	rateLimitPause = 5 * time.Second
)

// mapError folds Gate API error labels into the engine's coarse taxonomy.
func mapError(err error) exchange.ErrCode {
	var apiErr gateapi.GateAPIError
	if !errors.As(err, &apiErr) {
		if strings.Contains(err.Error(), "429") {
			return exchange.CodeRateLimited
		}
		return exchange.CodeUnknown
	}
	switch strings.ToUpper(apiErr.Label) {
	case "TOO_MANY_REQUESTS":
		return exchange.CodeRateLimited
	case "INSUFFICIENT_AVAILABLE", "BALANCE_NOT_ENOUGH", "MARGIN_BALANCE_NOT_ENOUGH":
		return exchange.CodeInsufficientBalance
	case "SIZE_TOO_SMALL", "ORDER_SIZE_TOO_SMALL", "CONTRACT_TOO_SMALL":
		return exchange.CodeMinNotional
	case "POSITION_EMPTY", "POSITION_NOT_FOUND":
		return exchange.CodeNoPosition
	default:
		return exchange.CodeUnknown
	}
}

// sendWithRetry applies the uniform trade-call retry contract (3 attempts,
// fixed 5s pause, rate-limit responses only).
func sendWithRetry(ctx context.Context, name string, call func() (string, error)) exchange.OrderResult {
	var raw string
	err := retry.Do(ctx,
		retry.Options{Attempts: tradeAttempts, Delay: rateLimitPause, Fixed: true},
		func() error {
			var callErr error
			raw, callErr = call()
			return callErr
		},
		func(err error) bool {
			retryable := mapError(err) == exchange.CodeRateLimited
			if retryable {
				logger.Warnf("%s: rate limited, backing off %s: %v", name, rateLimitPause, err)
			}
			return retryable
		},
	)
	if err != nil {
		return exchange.Failed(mapError(err), err.Error(), raw)
	}
	return exchange.Succeeded(raw)
}
