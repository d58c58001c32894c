// Package gate implements the exchange gateway for Gate.io USDT-settled
// perpetual futures via gateapi-go.
package gate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"

	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/logger"
	symbolpkg "sigtrade/internal/pkg/symbol"
	"sigtrade/internal/types"
)

// Gateway talks to Gate futures. Gate sizes orders in integer contracts;
// every request converts base-asset size through the contract's quanto
// multiplier first.
type Gateway struct {
	cfg  Config
	rest *gateapi.APIClient
}

func New(cfg Config) (*Gateway, error) {
	final := cfg.withDefaults()
	rest, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: final, rest: rest}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = strings.TrimSpace(cfg.RESTBaseURL)
	if conf.BasePath == "" {
		conf.BasePath = defaultRESTBase
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

func (g *Gateway) Name() string { return types.ExchangeGate.String() }

func authCtx(ctx context.Context, creds exchange.Credentials) context.Context {
	return context.WithValue(ctx, gateapi.ContextGateAPIV4, gateapi.GateAPIV4{
		Key:    creds.Key,
		Secret: creds.Secret,
	})
}

// GetBalance returns the USDT futures account balance.
func (g *Gateway) GetBalance(ctx context.Context, creds exchange.Credentials) (exchange.Balance, error) {
	if creds.Key == "" || creds.Secret == "" {
		return exchange.Balance{}, fmt.Errorf("gate: missing api credentials")
	}
	account, _, err := g.rest.FuturesApi.ListFuturesAccounts(authCtx(ctx, creds), settle)
	if err != nil {
		return exchange.Balance{}, err
	}
	total, _ := strconv.ParseFloat(account.Total, 64)
	avail, _ := strconv.ParseFloat(account.Available, 64)
	return exchange.Balance{
		Asset:     strings.ToUpper(settle),
		Available: avail,
		Total:     total,
		UpdatedAt: time.Now(),
	}, nil
}

// GetPrice returns the contract's last price.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	contract := symbolpkg.Gate.ToExchange(symbol)
	opts := &gateapi.ListFuturesTickersOpts{Contract: optional.NewString(contract)}
	tickers, _, err := g.rest.FuturesApi.ListFuturesTickers(ctx, settle, opts)
	if err != nil {
		return exchange.PriceQuote{}, err
	}
	if len(tickers) == 0 {
		return exchange.PriceQuote{}, fmt.Errorf("gate: no ticker for %s", symbol)
	}
	last, err := strconv.ParseFloat(tickers[0].Last, 64)
	if err != nil {
		return exchange.PriceQuote{}, fmt.Errorf("gate: bad ticker payload for %s: %w", symbol, err)
	}
	return exchange.PriceQuote{Symbol: symbol, Last: last, UpdatedAt: time.Now()}, nil
}

// GetPrecision derives the constraints from the futures contract spec.
func (g *Gateway) GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error) {
	contract, err := g.contract(ctx, symbol)
	if err != nil {
		return types.ExchangePrecision{}, err
	}
	priceStep, _ := strconv.ParseFloat(contract.OrderPriceRound, 64)
	multiplier, _ := strconv.ParseFloat(contract.QuantoMultiplier, 64)
	levMin, _ := strconv.ParseFloat(contract.LeverageMin, 64)
	levMax, _ := strconv.ParseFloat(contract.LeverageMax, 64)
	markPrice, _ := strconv.ParseFloat(contract.MarkPrice, 64)

	prec := types.ExchangePrecision{
		PriceStep:   priceStep,
		AmountStep:  multiplier,
		MinLeverage: int(levMin),
		MaxLeverage: int(levMax),
	}
	if prec.MinLeverage < 1 {
		prec.MinLeverage = 1
	}
	// Gate has no notional filter; one contract is the floor.
	if multiplier > 0 && markPrice > 0 {
		prec.MinNotional = float64(contract.OrderSizeMin) * multiplier * markPrice
	}
	return prec, nil
}

func (g *Gateway) contract(ctx context.Context, symbol string) (gateapi.Contract, error) {
	name := symbolpkg.Gate.ToExchange(symbol)
	contract, _, err := g.rest.FuturesApi.GetFuturesContract(ctx, settle, name)
	if err != nil {
		return gateapi.Contract{}, err
	}
	return contract, nil
}

// contractSize converts a base-asset size into signed integer contracts.
func contractSize(size, multiplier float64, side types.Side, reduce bool) int64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	n := int64(math.Round(size / multiplier))
	if n == 0 {
		n = 1
	}
	short := side == types.SideShort
	if reduce {
		short = !short
	}
	if short {
		n = -n
	}
	return n
}

// SendEntryOrder opens or adds to a position with an IOC market order.
func (g *Gateway) SendEntryOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	if creds.Key == "" || creds.Secret == "" {
		return exchange.Failed(exchange.CodeUnknown, "gate: missing api credentials", "")
	}
	contract, err := g.contract(ctx, req.Symbol)
	if err != nil {
		return exchange.Failed(mapError(err), err.Error(), "")
	}
	auth := authCtx(ctx, creds)

	if req.Leverage > 0 {
		leverage := strconv.Itoa(req.Leverage)
		opts := &gateapi.UpdatePositionLeverageOpts{}
		if !req.Isolated {
			// Cross margin: leverage 0 with an explicit cross limit.
			opts.CrossLeverageLimit = optional.NewString(leverage)
			leverage = "0"
		}
		if _, _, err := g.rest.FuturesApi.UpdatePositionLeverage(auth, settle, contract.Name, leverage, opts); err != nil {
			logger.Warnf("gate: update leverage failed contract=%s lev=%d: %v", contract.Name, req.Leverage, err)
		}
	}

	multiplier, _ := strconv.ParseFloat(contract.QuantoMultiplier, 64)
	return g.placeOrder(auth, contract.Name, contractSize(req.Size, multiplier, req.Side, false), false)
}

// SendTakeProfitOrder reduces the position with an IOC market order.
func (g *Gateway) SendTakeProfitOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	return g.sendReduce(ctx, creds, req)
}

// SendStoplossOrder closes the remaining position with an IOC market order.
func (g *Gateway) SendStoplossOrder(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	return g.sendReduce(ctx, creds, req)
}

func (g *Gateway) sendReduce(ctx context.Context, creds exchange.Credentials, req exchange.OrderRequest) exchange.OrderResult {
	if creds.Key == "" || creds.Secret == "" {
		return exchange.Failed(exchange.CodeUnknown, "gate: missing api credentials", "")
	}
	contract, err := g.contract(ctx, req.Symbol)
	if err != nil {
		return exchange.Failed(mapError(err), err.Error(), "")
	}
	multiplier, _ := strconv.ParseFloat(contract.QuantoMultiplier, 64)
	size := contractSize(req.Size, multiplier, req.Side, true)
	return g.placeOrder(authCtx(ctx, creds), contract.Name, size, true)
}

func (g *Gateway) placeOrder(auth context.Context, contract string, size int64, reduce bool) exchange.OrderResult {
	order := gateapi.FuturesOrder{
		Contract:   contract,
		Size:       size,
		Price:      "0", // market
		Tif:        "ioc",
		ReduceOnly: reduce,
	}
	return sendWithRetry(auth, "gate", func() (string, error) {
		placed, _, err := g.rest.FuturesApi.CreateFuturesOrder(auth, settle, order, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"order_id":%d,"status":%q}`, placed.Id, placed.Status), nil
	})
}
