// Package binance implements the exchange gateway for Binance USDT-M
// futures on top of the go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	symbolpkg "sigtrade/internal/pkg/symbol"
	"sigtrade/internal/types"
)

// Gateway talks to Binance futures. Market-data calls share one unsigned
// client; trade calls build a signed client per user credentials.
type Gateway struct {
	cfg    Config
	public *futures.Client
}

func New(cfg Config) (*Gateway, error) {
	final := cfg.withDefaults()
	client, err := newClient(final, "", "")
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: final, public: client}, nil
}

func newClient(cfg Config, key, secret string) (*futures.Client, error) {
	client := futures.NewClient(key, secret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return client, nil
}

func (g *Gateway) Name() string { return types.ExchangeBinance.String() }

func (g *Gateway) signed(creds exchange.Credentials) (*futures.Client, error) {
	if creds.Key == "" || creds.Secret == "" {
		return nil, fmt.Errorf("binance: missing api credentials")
	}
	return newClient(g.cfg, creds.Key, creds.Secret)
}

// GetBalance returns the available USDT futures balance.
func (g *Gateway) GetBalance(ctx context.Context, creds exchange.Credentials) (exchange.Balance, error) {
	client, err := g.signed(creds)
	if err != nil {
		return exchange.Balance{}, err
	}
	balances, err := client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, err
	}
	for _, b := range balances {
		if !strings.EqualFold(b.Asset, "USDT") {
			continue
		}
		total, _ := strconv.ParseFloat(b.Balance, 64)
		avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		return exchange.Balance{
			Asset:     "USDT",
			Available: avail,
			Total:     total,
			UpdatedAt: time.Now(),
		}, nil
	}
	return exchange.Balance{Asset: "USDT", UpdatedAt: time.Now()}, nil
}

// GetPrice returns the last traded price for symbol.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	exSymbol := symbolpkg.Binance.ToExchange(symbol)
	prices, err := g.public.NewListPricesService().Symbol(exSymbol).Do(ctx)
	if err != nil {
		return exchange.PriceQuote{}, err
	}
	if len(prices) == 0 {
		return exchange.PriceQuote{}, fmt.Errorf("binance: no price for %s", symbol)
	}
	last, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return exchange.PriceQuote{}, fmt.Errorf("binance: bad price payload for %s: %w", symbol, err)
	}
	return exchange.PriceQuote{Symbol: symbol, Last: last, UpdatedAt: time.Now()}, nil
}

// GetPrecision resolves the trading constraints for symbol from exchange
// info. Leverage bounds fall back to 1..defaultMaxLeverage when the bracket
// lookup needs credentials.
func (g *Gateway) GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error) {
	exSymbol := symbolpkg.Binance.ToExchange(symbol)
	info, err := g.public.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.ExchangePrecision{}, err
	}
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if !strings.EqualFold(s.Symbol, exSymbol) {
			continue
		}
		prec := types.ExchangePrecision{
			MinLeverage: 1,
			MaxLeverage: g.cfg.MaxLeverage,
		}
		if f := s.PriceFilter(); f != nil {
			prec.PriceStep, _ = strconv.ParseFloat(f.TickSize, 64)
		}
		if f := s.LotSizeFilter(); f != nil {
			prec.AmountStep, _ = strconv.ParseFloat(f.StepSize, 64)
		}
		if f := s.MinNotionalFilter(); f != nil {
			prec.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
		}
		return prec, nil
	}
	return types.ExchangePrecision{}, fmt.Errorf("binance: unknown symbol %s", symbol)
}

// SendEntryOrder opens (or adds to) a position with a market order, setting
// leverage and margin mode first.
func (g *Gateway) SendEntryOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	client, err := g.signed(creds)
	if err != nil {
		return exchange.Failed(exchange.CodeUnknown, err.Error(), "")
	}
	exSymbol := symbolpkg.Binance.ToExchange(req.Symbol)

	if req.Leverage > 0 {
		if _, err := client.NewChangeLeverageService().
			Symbol(exSymbol).Leverage(req.Leverage).Do(ctx); err != nil {
			logger.Warnf("binance: change leverage failed symbol=%s lev=%d: %v", req.Symbol, req.Leverage, err)
		}
	}
	marginType := futures.MarginTypeCrossed
	if req.Isolated {
		marginType = futures.MarginTypeIsolated
	}
	if err := client.NewChangeMarginTypeService().
		Symbol(exSymbol).MarginType(marginType).Do(ctx); err != nil {
		// Binance rejects a no-op margin switch; only worth a debug line.
		logger.Debugf("binance: change margin type symbol=%s: %v", req.Symbol, err)
	}

	return g.sendMarket(ctx, client, req, false)
}

// SendTakeProfitOrder closes part of a position with a reduce-only market
// order.
func (g *Gateway) SendTakeProfitOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	client, err := g.signed(creds)
	if err != nil {
		return exchange.Failed(exchange.CodeUnknown, err.Error(), "")
	}
	return g.sendMarket(ctx, client, req, true)
}

// SendStoplossOrder closes the remaining position with a reduce-only market
// order.
func (g *Gateway) SendStoplossOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	client, err := g.signed(creds)
	if err != nil {
		return exchange.Failed(exchange.CodeUnknown, err.Error(), "")
	}
	return g.sendMarket(ctx, client, req, true)
}

func (g *Gateway) sendMarket(ctx context.Context, client *futures.Client, req exchange.OrderRequest, reduce bool) exchange.OrderResult {
	exSymbol := symbolpkg.Binance.ToExchange(req.Symbol)
	side := futures.SideTypeBuy
	if req.Side == types.SideShort {
		side = futures.SideTypeSell
	}
	if reduce {
		// Closing a long sells, closing a short buys.
		if req.Side == types.SideLong {
			side = futures.SideTypeSell
		} else {
			side = futures.SideTypeBuy
		}
	}
	svc := client.NewCreateOrderService().
		Symbol(exSymbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Size, 'f', -1, 64))
	if reduce {
		svc = svc.ReduceOnly(true)
	}
	return sendWithRetry(ctx, g.Name(), func() (string, error) {
		order, err := svc.Do(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"order_id":%d,"status":%q}`, order.OrderID, order.Status), nil
	})
}
