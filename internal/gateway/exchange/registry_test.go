package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/types"
)

type stubGateway struct {
	name    string
	calls   int
	entry   OrderResult
	balance Balance
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) GetBalance(ctx context.Context, creds Credentials) (Balance, error) {
	return g.balance, nil
}

func (g *stubGateway) GetPrice(ctx context.Context, symbol string) (PriceQuote, error) {
	return PriceQuote{Symbol: symbol, Last: 100}, nil
}

func (g *stubGateway) GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error) {
	return types.ExchangePrecision{}, nil
}

func (g *stubGateway) SendEntryOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult {
	g.calls++
	return g.entry
}

func (g *stubGateway) SendTakeProfitOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult {
	g.calls++
	return g.entry
}

func (g *stubGateway) SendStoplossOrder(ctx context.Context, creds Credentials, req OrderRequest) OrderResult {
	g.calls++
	return g.entry
}

func TestResolveUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(types.ExchangeGate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gateway registered")
}

func TestRegisterNilIgnored(t *testing.T) {
	r := NewRegistry()
	r.Register(types.ExchangeBinance, nil)
	assert.Empty(t, r.Exchanges())
}

func TestTradePassesResultThrough(t *testing.T) {
	gw := &stubGateway{name: "binance", entry: Succeeded(`{"orderId":1}`)}
	r := NewRegistry()
	r.Register(types.ExchangeBinance, gw)

	res := r.Trade(types.ExchangeBinance, func(g Gateway) OrderResult {
		return g.SendEntryOrder(context.Background(), Credentials{}, OrderRequest{})
	})
	require.True(t, res.OK)
	assert.Equal(t, 1, gw.calls)
}

func TestTradeFailureKeepsGatewayCode(t *testing.T) {
	gw := &stubGateway{name: "gate", entry: Failed(CodeMinNotional, "too small", "")}
	r := NewRegistry()
	r.Register(types.ExchangeGate, gw)

	res := r.Trade(types.ExchangeGate, func(g Gateway) OrderResult {
		return g.SendEntryOrder(context.Background(), Credentials{}, OrderRequest{})
	})
	require.False(t, res.OK)
	assert.Equal(t, CodeMinNotional, res.Code)
	assert.Equal(t, "too small", res.Message)
}

func TestTradeBreakerOpensAfterRepeatedFailures(t *testing.T) {
	gw := &stubGateway{name: "binance", entry: Failed(CodeUnknown, "boom", "")}
	r := NewRegistry()
	r.Register(types.ExchangeBinance, gw)

	send := func() OrderResult {
		return r.Trade(types.ExchangeBinance, func(g Gateway) OrderResult {
			return g.SendEntryOrder(context.Background(), Credentials{}, OrderRequest{})
		})
	}
	for i := 0; i < breakerThreshold; i++ {
		res := send()
		assert.False(t, res.OK)
	}
	assert.Equal(t, breakerThreshold, gw.calls)

	// Breaker is open now: the gateway is not invoked and the rejection
	// comes back as a transient unknown failure.
	res := send()
	require.False(t, res.OK)
	assert.Equal(t, CodeUnknown, res.Code)
	assert.Contains(t, res.Message, "circuit breaker open")
	assert.Equal(t, breakerThreshold, gw.calls)
}

func TestTradeSuccessResetsFailureCount(t *testing.T) {
	gw := &stubGateway{name: "binance", entry: Failed(CodeUnknown, "boom", "")}
	r := NewRegistry()
	r.Register(types.ExchangeBinance, gw)

	send := func() OrderResult {
		return r.Trade(types.ExchangeBinance, func(g Gateway) OrderResult {
			return g.SendEntryOrder(context.Background(), Credentials{}, OrderRequest{})
		})
	}
	for i := 0; i < breakerThreshold-1; i++ {
		send()
	}
	gw.entry = Succeeded("")
	require.True(t, send().OK)

	gw.entry = Failed(CodeUnknown, "boom", "")
	res := send()
	assert.False(t, res.OK)
	assert.Equal(t, "boom", res.Message, "gateway still reachable after reset")
}
