// Package oracle supplies last prices to the engine. It aggregates quotes
// across every registered exchange gateway and falls back to the persisted
// aggregate when a live fetch fails, so a flaky venue never stalls or
// force-closes anything.
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

// ErrPriceNotFound means neither a live quote nor a cached aggregate exists
// for the symbol.
var ErrPriceNotFound = errors.New("price not found")

// Quote is one aggregate price observation.
type Quote struct {
	Symbol    string
	Price     float64
	UpdatedAt time.Time
	Cached    bool // true when served from the fallback cache
}

// PriceCache is the persistence slice the oracle needs.
type PriceCache interface {
	CachedPrice(ctx context.Context, symbol string) (model.PriceCache, error)
	PutPrice(ctx context.Context, symbol string, price float64) error
}

const (
	fetchParallelism = 2
	fetchTimeout     = 5 * time.Second
)

// AggregateOracle averages the last price over every gateway that answers.
type AggregateOracle struct {
	registry *exchange.Registry
	cache    PriceCache
}

func NewAggregate(registry *exchange.Registry, cache PriceCache) *AggregateOracle {
	return &AggregateOracle{registry: registry, cache: cache}
}

// GetPrice returns the aggregate price for one symbol, live if possible,
// cached otherwise.
func (o *AggregateOracle) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := o.fetchLive(ctx, symbol); ok {
		return q, nil
	}
	return o.cached(ctx, symbol)
}

// Precision resolves the trading constraints for symbol on one exchange.
func (o *AggregateOracle) Precision(ctx context.Context, ex types.Exchange, symbol string) (types.ExchangePrecision, error) {
	gw, err := o.registry.Resolve(ex)
	if err != nil {
		return types.ExchangePrecision{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	return gw.GetPrecision(callCtx, symbol)
}

// FetchSymbols resolves prices for a symbol set with bounded parallelism.
// Missing symbols are returned separately; the caller defers their work
// for the tick instead of cancelling it.
func (o *AggregateOracle) FetchSymbols(ctx context.Context, symbols []string) (map[string]Quote, []string) {
	quotes := make(map[string]Quote, len(symbols))
	var missing []string
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fetchParallelism)
	for _, symbol := range symbols {
		symbol := symbol
		group.Go(func() error {
			q, err := o.GetPrice(groupCtx, symbol)
			if err != nil {
				// One immediate re-attempt before the symbol is deferred
				// for the tick.
				q, err = o.GetPrice(groupCtx, symbol)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				missing = append(missing, symbol)
				return nil
			}
			quotes[symbol] = q
			return nil
		})
	}
	_ = group.Wait()
	return quotes, missing
}

// fetchLive queries every registered gateway and averages the answers;
// the result is written through to the cache.
func (o *AggregateOracle) fetchLive(ctx context.Context, symbol string) (Quote, bool) {
	var sum float64
	var count int
	for _, ex := range o.registry.Exchanges() {
		err := o.registry.Call(ex, func(gw exchange.Gateway) error {
			callCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()
			q, err := gw.GetPrice(callCtx, symbol)
			if err != nil {
				return err
			}
			if q.Last > 0 {
				sum += q.Last
				count++
			}
			return nil
		})
		if err != nil {
			logger.Debugf("oracle: %s price fetch failed symbol=%s: %v", ex, symbol, err)
		}
	}
	if count == 0 {
		return Quote{}, false
	}
	price := sum / float64(count)
	if o.cache != nil {
		if err := o.cache.PutPrice(ctx, symbol, price); err != nil {
			logger.Warnf("oracle: cache write failed symbol=%s: %v", symbol, err)
		}
	}
	return Quote{Symbol: symbol, Price: price, UpdatedAt: time.Now()}, true
}

func (o *AggregateOracle) cached(ctx context.Context, symbol string) (Quote, error) {
	if o.cache == nil {
		return Quote{}, ErrPriceNotFound
	}
	row, err := o.cache.CachedPrice(ctx, symbol)
	if err != nil || row.Price <= 0 {
		return Quote{}, ErrPriceNotFound
	}
	return Quote{
		Symbol:    symbol,
		Price:     row.Price,
		UpdatedAt: time.Unix(row.UpdatedAtUnix, 0),
		Cached:    true,
	}, nil
}
