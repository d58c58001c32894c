package binance

import "time"

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultMaxLeverage = 125
)

type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
	MaxLeverage  int
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = defaultMaxLeverage
	}
	return c
}
