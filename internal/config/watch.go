package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"sigtrade/internal/logger"
)

// ChangeListener is invoked with the freshly validated config after a
// reload.
type ChangeListener func(Config)

// Watcher reloads the config file on filesystem events. A reload that
// fails validation is logged and dropped; the previous snapshot stays
// active.
type Watcher struct {
	v *viper.Viper

	mu        sync.RWMutex
	current   Config
	listeners []ChangeListener
}

// Watch loads the config and starts watching the file.
func Watch(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	w := &Watcher{v: v, current: *cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := decode(w.v)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.mu.Lock()
		w.current = *next
		listeners := append([]ChangeListener(nil), w.listeners...)
		w.mu.Unlock()
		logger.Infof("config reloaded from %s", evt.Name)
		for _, fn := range listeners {
			fn(*next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the active snapshot.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a listener for future reloads.
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}
