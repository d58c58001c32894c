package gate

import "time"

const (
	settle          = "usdt"
	defaultRESTBase = "https://api.gateio.ws/api/v4"
	defaultTimeout  = 10 * time.Second
)

type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
}

func (c Config) withDefaults() Config {
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultRESTBase
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultTimeout
	}
	return c
}
