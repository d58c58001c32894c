// Package bybit is an intentionally partial gateway: it serves balance and
// price lookups for the aggregate oracle but does not trade. Extending it
// to the full capability set means implementing the three Send* calls and
// mapping Bybit's retCode values into the exchange error taxonomy.
package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"sigtrade/internal/gateway/exchange"
	symbolpkg "sigtrade/internal/pkg/symbol"
	"sigtrade/internal/types"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	recvWindow     = 5000
	defaultTimeout = 10 * time.Second
)

type Gateway struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Gateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (g *Gateway) Name() string { return types.ExchangeBybit.String() }

func sign(secret, key, params string, timestamp int64) string {
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, key, recvWindow, params)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gateway) get(ctx context.Context, path, query string, creds *exchange.Credentials) ([]byte, error) {
	url := g.baseURL + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		timestamp := time.Now().UnixMilli()
		req.Header.Set("X-BAPI-API-KEY", creds.Key)
		req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-BAPI-SIGN", sign(creds.Secret, creds.Key, query, timestamp))
		req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bybit: http %d: %s", resp.StatusCode, string(body))
	}
	if ret := gjson.GetBytes(body, "retCode"); ret.Exists() && ret.Int() != 0 {
		return nil, fmt.Errorf("bybit: retCode=%d %s", ret.Int(), gjson.GetBytes(body, "retMsg").String())
	}
	return body, nil
}

// GetBalance returns the unified-account USDT balance.
func (g *Gateway) GetBalance(ctx context.Context, creds exchange.Credentials) (exchange.Balance, error) {
	if creds.Key == "" || creds.Secret == "" {
		return exchange.Balance{}, fmt.Errorf("bybit: missing api credentials")
	}
	body, err := g.get(ctx, "/v5/account/wallet-balance", "accountType=UNIFIED&coin=USDT", &creds)
	if err != nil {
		return exchange.Balance{}, err
	}
	coin := gjson.GetBytes(body, "result.list.0.coin.0")
	return exchange.Balance{
		Asset:     "USDT",
		Available: coin.Get("availableToWithdraw").Float(),
		Total:     coin.Get("walletBalance").Float(),
		UpdatedAt: time.Now(),
	}, nil
}

// GetPrice returns the linear-perp last price.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (exchange.PriceQuote, error) {
	exSymbol := symbolpkg.Bybit.ToExchange(symbol)
	body, err := g.get(ctx, "/v5/market/tickers", "category=linear&symbol="+exSymbol, nil)
	if err != nil {
		return exchange.PriceQuote{}, err
	}
	last := gjson.GetBytes(body, "result.list.0.lastPrice").Float()
	if last <= 0 {
		return exchange.PriceQuote{}, fmt.Errorf("bybit: no price for %s", symbol)
	}
	return exchange.PriceQuote{Symbol: symbol, Last: last, UpdatedAt: time.Now()}, nil
}

// GetPrecision resolves instrument constraints from the instruments-info
// endpoint.
func (g *Gateway) GetPrecision(ctx context.Context, symbol string) (types.ExchangePrecision, error) {
	exSymbol := symbolpkg.Bybit.ToExchange(symbol)
	body, err := g.get(ctx, "/v5/market/instruments-info", "category=linear&symbol="+exSymbol, nil)
	if err != nil {
		return types.ExchangePrecision{}, err
	}
	inst := gjson.GetBytes(body, "result.list.0")
	if !inst.Exists() {
		return types.ExchangePrecision{}, fmt.Errorf("bybit: unknown symbol %s", symbol)
	}
	return types.ExchangePrecision{
		MinNotional: inst.Get("lotSizeFilter.minNotionalValue").Float(),
		PriceStep:   inst.Get("priceFilter.tickSize").Float(),
		AmountStep:  inst.Get("lotSizeFilter.qtyStep").Float(),
		MinLeverage: int(inst.Get("leverageFilter.minLeverage").Float()),
		MaxLeverage: int(inst.Get("leverageFilter.maxLeverage").Float()),
	}, nil
}

// SendEntryOrder is not implemented; bybit is balance/price only.
func (g *Gateway) SendEntryOrder(context.Context, exchange.Credentials, exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, exchange.ErrUnsupported.Error(), "")
}

func (g *Gateway) SendTakeProfitOrder(context.Context, exchange.Credentials, exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, exchange.ErrUnsupported.Error(), "")
}

func (g *Gateway) SendStoplossOrder(context.Context, exchange.Credentials, exchange.OrderRequest) exchange.OrderResult {
	return exchange.Failed(exchange.CodeUnknown, exchange.ErrUnsupported.Error(), "")
}
