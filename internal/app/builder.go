package app

import (
	"fmt"
	"strings"

	"sigtrade/internal/api"
	"sigtrade/internal/config"
	"sigtrade/internal/engine"
	"sigtrade/internal/errsink"
	"sigtrade/internal/gateway/binance"
	"sigtrade/internal/gateway/bybit"
	"sigtrade/internal/gateway/exchange"
	"sigtrade/internal/gateway/gate"
	"sigtrade/internal/intake"
	"sigtrade/internal/logger"
	"sigtrade/internal/notifier"
	"sigtrade/internal/oracle"
	"sigtrade/internal/planner"
	"sigtrade/internal/store/gormstore"
	"sigtrade/internal/types"
)

// build wires the full dependency graph from one config snapshot.
func build(watcher *config.Watcher) (*App, error) {
	cfg := watcher.Current()

	store, err := gormstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry, err := buildRegistry(cfg.Exchanges)
	if err != nil {
		store.Close()
		return nil, err
	}

	orc := oracle.NewAggregate(registry, store)
	sink := errsink.New(store)
	plans := planner.NewService(store, registry, orc, sink)
	accept := intake.NewService(store, orc, plans)

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.TelegramBotToken != "" {
		notify = notifier.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
	}

	interval, err := cfg.Engine.Interval()
	if err != nil {
		store.Close()
		return nil, err
	}
	eng := engine.New(store, orc, registry, sink, notify, interval)
	eng.RunImmediately = cfg.Engine.RunImmediately

	server, err := api.NewServer(api.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Token:  cfg.App.APIToken,
		Store:  store,
		Intake: accept,
		Engine: eng,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build api server: %w", err)
	}

	watcher.Subscribe(func(next config.Config) {
		logger.SetLevel(next.App.LogLevel)
		if d, err := next.Engine.Interval(); err == nil {
			eng.SetInterval(d)
		}
	})

	a := &App{
		watcher: watcher,
		store:   store,
		engine:  eng,
		api:     server,
	}
	logger.Infof("app: wired store=%s exchanges=[%s] tick=%s http=%s",
		cfg.Store.Path, exchangeList(registry), interval, cfg.App.HTTPAddr)
	return a, nil
}

func buildRegistry(cfg config.ExchangesConfig) (*exchange.Registry, error) {
	registry := exchange.NewRegistry()
	if cfg.Binance.Enabled {
		gw, err := binance.New(binance.Config{
			RESTBaseURL:  cfg.Binance.RESTBaseURL,
			ProxyEnabled: cfg.Binance.ProxyEnabled,
			RESTProxyURL: cfg.Binance.RESTProxyURL,
			MaxLeverage:  cfg.Binance.MaxLeverage,
		})
		if err != nil {
			return nil, fmt.Errorf("build binance gateway: %w", err)
		}
		registry.Register(types.ExchangeBinance, gw)
	}
	if cfg.Gate.Enabled {
		gw, err := gate.New(gate.Config{
			RESTBaseURL:  cfg.Gate.RESTBaseURL,
			ProxyEnabled: cfg.Gate.ProxyEnabled,
			RESTProxyURL: cfg.Gate.RESTProxyURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build gate gateway: %w", err)
		}
		registry.Register(types.ExchangeGate, gw)
	}
	if cfg.Bybit.Enabled {
		registry.Register(types.ExchangeBybit, bybit.New(cfg.Bybit.RESTBaseURL))
	}
	if len(registry.Exchanges()) == 0 {
		return nil, fmt.Errorf("no exchange gateways enabled")
	}
	return registry, nil
}

func exchangeList(registry *exchange.Registry) string {
	var names []string
	for _, ex := range registry.Exchanges() {
		names = append(names, ex.String())
	}
	return strings.Join(names, ", ")
}
