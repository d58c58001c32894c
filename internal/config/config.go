// Package config loads and validates the runtime configuration. The file
// is watched for changes; the log level and tick interval take effect
// without a restart.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9982"
	defaultAppLogPath   = ""
	defaultStorePath    = "data/sigtrade.db"
	defaultTickInterval = "30s"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultAppLogPath
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Engine.TickInterval == "" {
		c.Engine.TickInterval = defaultTickInterval
	}
}

func validate(c *Config) error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", c.App.LogLevel)
	}
	interval, err := c.Engine.Interval()
	if err != nil {
		return fmt.Errorf("engine.tick_interval invalid: %w", err)
	}
	if interval < time.Second {
		return fmt.Errorf("engine.tick_interval must be at least 1s, got %s", interval)
	}
	if !c.Exchanges.Binance.Enabled && !c.Exchanges.Gate.Enabled && !c.Exchanges.Bybit.Enabled {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	return nil
}
