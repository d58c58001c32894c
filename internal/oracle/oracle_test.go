package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

type priceGateway struct {
	name     string
	prices   map[string]float64
	err      error
	failOnce bool
	calls    int
}

func (g *priceGateway) Name() string { return g.name }

func (g *priceGateway) GetBalance(ctx context.Context, creds exchange.Credentials) (exchange.Balance, error) {
	return exchange.Balance{}, exchange.ErrUnsupported
}

func (g *priceGateway) GetPrice(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	g.calls++
	if g.failOnce && g.calls == 1 {
		return exchange.PriceQuote{}, errors.New("transient")
	}
	if g.err != nil {
		return exchange.PriceQuote{}, g.err
	}
	last, ok := g.prices[symbol]
	if !ok {
		return exchange.PriceQuote{}, errors.New("symbol not listed")
	}
	return exchange.PriceQuote{Symbol: symbol, Last: last, UpdatedAt: time.Now()}, nil
}

func (g *priceGateway) GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error) {
	return types.ExchangePrecision{MinNotional: 5}, nil
}

func (g *priceGateway) SendEntryOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, "not a trading stub", "")
}

func (g *priceGateway) SendTakeProfitOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, "not a trading stub", "")
}

func (g *priceGateway) SendStoplossOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, "not a trading stub", "")
}

type memCache struct {
	rows map[string]model.PriceCache
}

func (c *memCache) CachedPrice(ctx context.Context, symbol string) (model.PriceCache, error) {
	row, ok := c.rows[symbol]
	if !ok {
		return model.PriceCache{}, errors.New("not cached")
	}
	return row, nil
}

func (c *memCache) PutPrice(ctx context.Context, symbol string, price float64) error {
	if c.rows == nil {
		c.rows = make(map[string]model.PriceCache)
	}
	c.rows[symbol] = model.PriceCache{Symbol: symbol, Price: price, UpdatedAtUnix: time.Now().Unix()}
	return nil
}

func TestGetPriceAveragesAcrossGateways(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(types.ExchangeBinance, &priceGateway{name: "binance", prices: map[string]float64{"BTCUSDT": 100}})
	reg.Register(types.ExchangeGate, &priceGateway{name: "gate", prices: map[string]float64{"BTCUSDT": 104}})
	cache := &memCache{}
	o := NewAggregate(reg, cache)

	q, err := o.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 102, q.Price, 1e-9)
	assert.False(t, q.Cached)

	// The aggregate is written through to the cache.
	row, err := cache.CachedPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 102, row.Price, 1e-9)
}

func TestGetPriceFallsBackToCache(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(types.ExchangeBinance, &priceGateway{name: "binance", err: errors.New("down")})
	cache := &memCache{rows: map[string]model.PriceCache{
		"ETHUSDT": {Symbol: "ETHUSDT", Price: 2000, UpdatedAtUnix: time.Now().Unix()},
	}}
	o := NewAggregate(reg, cache)

	q, err := o.GetPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 2000, q.Price, 1e-9)
	assert.True(t, q.Cached)

	_, err = o.GetPrice(context.Background(), "XRPUSDT")
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestFetchSymbolsRetriesTransientFailure(t *testing.T) {
	reg := exchange.NewRegistry()
	gw := &priceGateway{name: "binance", failOnce: true, prices: map[string]float64{"BTCUSDT": 100}}
	reg.Register(types.ExchangeBinance, gw)
	o := NewAggregate(reg, &memCache{})

	quotes, missing := o.FetchSymbols(context.Background(), []string{"BTCUSDT"})
	require.Empty(t, missing)
	assert.InDelta(t, 100, quotes["BTCUSDT"].Price, 1e-9)
	assert.Equal(t, 2, gw.calls)
}

func TestFetchSymbolsReportsMissing(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(types.ExchangeBinance, &priceGateway{name: "binance", prices: map[string]float64{
		"BTCUSDT": 100,
		"ETHUSDT": 2000,
	}})
	o := NewAggregate(reg, &memCache{})

	quotes, missing := o.FetchSymbols(context.Background(), []string{"BTCUSDT", "ETHUSDT", "DOGEUSDT"})
	assert.Len(t, quotes, 2)
	assert.InDelta(t, 100, quotes["BTCUSDT"].Price, 1e-9)
	require.Len(t, missing, 1)
	assert.Equal(t, "DOGEUSDT", missing[0])
}
