package binance

import (
	"context"
	"errors"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/tidwall/gjson"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/pkg/retry"
)

const (
	tradeAttempts  = 3
	rateLimitPause = 5 * time.Second
)

// mapError folds Binance API error codes into the engine's coarse taxonomy.
func mapError(err error) exchange.ErrCode {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		if raw := gjson.Get(err.Error(), "code"); raw.Exists() {
			return mapCode(raw.Int())
		}
		return exchange.CodeUnknown
	}
	return mapCode(apiErr.Code)
}

func mapCode(code int64) exchange.ErrCode {
	switch code {
	case -1003, -1015, -5000: // TOO_MANY_REQUESTS / TOO_MANY_ORDERS
		return exchange.CodeRateLimited
	case -2018, -2019: // balance / margin insufficient
		return exchange.CodeInsufficientBalance
	case -1013, -4164: // filter failure: MIN_NOTIONAL
		return exchange.CodeMinNotional
	case -2022, -4118: // reduce-only rejected, no position on the side
		return exchange.CodeNoPosition
	default:
		return exchange.CodeUnknown
	}
}

// sendWithRetry drives one trade call with the uniform retry contract:
// up to 3 attempts with a fixed 5s pause, but only while the exchange is
// rate limiting us. Every other failure is mapped and returned immediately.
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
