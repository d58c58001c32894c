// Package intake accepts raw provider signals: schema validation, sanity
// band against the aggregate price, duplicate suppression, persistence and
// the planner fan-out.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sigtrade/internal/logger"
	"sigtrade/internal/oracle"
	"sigtrade/internal/pkg/symbol"
	"sigtrade/internal/pkg/trading"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

var (
	ErrInvalidPayload = errors.New("invalid signal payload")
	ErrNoPrice        = errors.New("no aggregate price for symbol")
	ErrPriceBand      = errors.New("entry too far from market price")
	ErrDuplicate      = errors.New("duplicate signal")
)

// Entries further than this from the aggregate price are rejected; a stale
// or fat-fingered call must not spawn plans.
const priceBandPct = 5.0

const dedupWindow = 64

// Store is the persistence slice intake needs.
type Store interface {
	InsertSignal(ctx context.Context, sig *model.Signal) error
}

// Prices supplies the aggregate quote the band check runs against.
type Prices interface {
	GetPrice(ctx context.Context, symbol string) (oracle.Quote, error)
}

// Planner fans an accepted signal out across the subscribed users.
type Planner interface {
	FanOut(ctx context.Context, sig types.Signal) (int, error)
}

type Service struct {
	store   Store
	prices  Prices
	planner Planner

	mu    sync.Mutex
	dedup map[int64]*ring // per provider
}

func NewService(store Store, prices Prices, planner Planner) *Service {
	return &Service{
		store:   store,
		prices:  prices,
		planner: planner,
		dedup:   map[int64]*ring{},
	}
}

type payload struct {
	ProviderID int64     `json:"provider_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Leverage   int       `json:"leverage"`
	Entry      float64   `json:"entry"`
	Stoploss   float64   `json:"stoploss"`
	Targets    []float64 `json:"targets"`
}

// Accept validates, dedups and persists one raw signal, then plans it.
// It returns the stored signal and the number of plan groups created.
func (s *Service) Accept(ctx context.Context, raw []byte) (types.Signal, int, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.Signal{}, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return types.Signal{}, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.Signal{}, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	side, err := types.ParseSide(p.Side)
	if err != nil {
		return types.Signal{}, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	sig := types.Signal{
		ProviderID: p.ProviderID,
		Symbol:     symbol.Normalize(p.Symbol),
		Side:       side,
		Leverage:   p.Leverage,
		Entry:      p.Entry,
		Stoploss:   p.Stoploss,
		Targets:    p.Targets,
	}

	quote, err := s.prices.GetPrice(ctx, sig.Symbol)
	if err != nil {
		return types.Signal{}, 0, fmt.Errorf("%w: %s", ErrNoPrice, sig.Symbol)
	}
	if !trading.WithinBand(sig.Entry, quote.Price, priceBandPct) {
		return types.Signal{}, 0, fmt.Errorf("%w: entry=%.8f market=%.8f band=%.1f%%",
			ErrPriceBand, sig.Entry, quote.Price, priceBandPct)
	}

	if !s.remember(sig) {
		return types.Signal{}, 0, fmt.Errorf("%w: %s %s @ %.8f from provider %d",
			ErrDuplicate, sig.Symbol, sig.Side, sig.Entry, sig.ProviderID)
	}

	row := model.NewSignal(sig)
	if err := s.store.InsertSignal(ctx, &row); err != nil {
		return types.Signal{}, 0, fmt.Errorf("persist signal: %w", err)
	}
	sig.ID = row.ID
	sig.CreatedAt = time.Unix(row.CreatedAtUnix, 0)

	plans, err := s.planner.FanOut(ctx, sig)
	if err != nil {
		return sig, plans, fmt.Errorf("plan fan-out: %w", err)
	}
	logger.Infof("intake: accepted signal %d (%s %s @ %.8f), %d plan group(s)",
		sig.ID, sig.Symbol, sig.Side, sig.Entry, plans)
	return sig, plans, nil
}

// remember records the signal key in its provider's ring; false means the
// key was seen within the window.
func (s *Service) remember(sig types.Signal) bool {
	key := fmt.Sprintf("%s|%s|%.8f", sig.Symbol, sig.Side, sig.Entry)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.dedup[sig.ProviderID]
	if !ok {
		r = newRing(dedupWindow)
		s.dedup[sig.ProviderID] = r
	}
	if r.contains(key) {
		return false
	}
	r.add(key)
	return true
}

// ring is a fixed-capacity set with FIFO eviction. Old keys fall out so a
// provider can legitimately re-issue a level days later.
type ring struct {
	keys  []string
	index map[string]struct{}
	next  int
}

func newRing(capacity int) *ring {
	return &ring{
		keys:  make([]string, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

func (r *ring) contains(key string) bool {
	_, ok := r.index[key]
	return ok
}

func (r *ring) add(key string) {
	if old := r.keys[r.next]; old != "" {
		delete(r.index, old)
	}
	r.keys[r.next] = key
	r.index[key] = struct{}{}
	r.next = (r.next + 1) % len(r.keys)
}
