package config

import "time"

// Config is the full runtime configuration, loaded from one YAML file.
type Config struct {
	App       AppConfig       `toml:"app"`
	Store     StoreConfig     `toml:"store"`
	Engine    EngineConfig    `toml:"engine"`
	Exchanges ExchangesConfig `toml:"exchanges"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	APIToken string `toml:"api_token"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type EngineConfig struct {
	TickInterval   string `toml:"tick_interval"`
	RunImmediately bool   `toml:"run_immediately"`
}

// Interval parses the configured tick interval.
func (e EngineConfig) Interval() (time.Duration, error) {
	return time.ParseDuration(e.TickInterval)
}

type ExchangesConfig struct {
	Binance BinanceConfig `toml:"binance"`
	Gate    GateConfig    `toml:"gate"`
	Bybit   BybitConfig   `toml:"bybit"`
}

type BinanceConfig struct {
	Enabled      bool   `toml:"enabled"`
	RESTBaseURL  string `toml:"rest_base_url"`
	ProxyEnabled bool   `toml:"proxy_enabled"`
	RESTProxyURL string `toml:"rest_proxy_url"`
	MaxLeverage  int    `toml:"max_leverage"`
}

type GateConfig struct {
	Enabled      bool   `toml:"enabled"`
	RESTBaseURL  string `toml:"rest_base_url"`
	ProxyEnabled bool   `toml:"proxy_enabled"`
	RESTProxyURL string `toml:"rest_proxy_url"`
}

type BybitConfig struct {
	Enabled     bool   `toml:"enabled"`
	RESTBaseURL string `toml:"rest_base_url"`
}

type NotifyConfig struct {
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
}
