package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/oracle"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

type memStore struct {
	rows   []model.Signal
	nextID int64
}

func (m *memStore) InsertSignal(ctx context.Context, sig *model.Signal) error {
	m.nextID++
	sig.ID = m.nextID
	m.rows = append(m.rows, *sig)
	return nil
}

type fixedPrices struct {
	price float64
	err   error
}

func (f fixedPrices) GetPrice(ctx context.Context, symbol string) (oracle.Quote, error) {
	if f.err != nil {
		return oracle.Quote{}, f.err
	}
	return oracle.Quote{Symbol: symbol, Price: f.price}, nil
}

type countingPlanner struct {
	calls   int
	lastSig types.Signal
}

func (p *countingPlanner) FanOut(ctx context.Context, sig types.Signal) (int, error) {
	p.calls++
	p.lastSig = sig
	return 3, nil
}

const validPayload = `{
	"provider_id": 1,
	"symbol": "btcusdt",
	"side": "long",
	"leverage": 10,
	"entry": 100,
	"stoploss": 90,
	"targets": [110, 120, 130]
}`

func TestAcceptValidSignal(t *testing.T) {
	store := &memStore{}
	plans := &countingPlanner{}
	svc := NewService(store, fixedPrices{price: 100.5}, plans)

	sig, groups, err := svc.Accept(context.Background(), []byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sig.ID)
	assert.Equal(t, "BTCUSDT", sig.Symbol, "symbol normalized to upper case")
	assert.Equal(t, types.SideLong, sig.Side)
	assert.Equal(t, 3, groups)
	assert.Equal(t, 1, plans.calls)
	require.Len(t, store.rows, 1)
}

func TestAcceptCanonicalizesSymbolSpellings(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, fixedPrices{price: 100.5}, &countingPlanner{})

	sig, _, err := svc.Accept(context.Background(),
		[]byte(`{"provider_id":1,"symbol":"BTC/USDT","side":"long","entry":100}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sig.Symbol, "slash spelling folds into the canonical form")
}

func TestAcceptSchemaRejects(t *testing.T) {
	svc := NewService(&memStore{}, fixedPrices{price: 100}, &countingPlanner{})

	cases := map[string]string{
		"not json":       `{`,
		"missing entry":  `{"provider_id":1,"symbol":"BTCUSDT","side":"long"}`,
		"bad side":       `{"provider_id":1,"symbol":"BTCUSDT","side":"up","entry":100}`,
		"zero entry":     `{"provider_id":1,"symbol":"BTCUSDT","side":"long","entry":0}`,
		"unknown field":  `{"provider_id":1,"symbol":"BTCUSDT","side":"long","entry":100,"foo":1}`,
		"silly leverage": `{"provider_id":1,"symbol":"BTCUSDT","side":"long","entry":100,"leverage":500}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.Accept(context.Background(), []byte(payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestAcceptPriceBand(t *testing.T) {
	t.Run("inside band", func(t *testing.T) {
		svc := NewService(&memStore{}, fixedPrices{price: 104}, &countingPlanner{})
		_, _, err := svc.Accept(context.Background(), []byte(validPayload))
		assert.NoError(t, err)
	})

	t.Run("outside band", func(t *testing.T) {
		svc := NewService(&memStore{}, fixedPrices{price: 120}, &countingPlanner{})
		_, _, err := svc.Accept(context.Background(), []byte(validPayload))
		assert.ErrorIs(t, err, ErrPriceBand)
	})

	t.Run("no aggregate price", func(t *testing.T) {
		svc := NewService(&memStore{}, fixedPrices{err: oracle.ErrPriceNotFound}, &countingPlanner{})
		_, _, err := svc.Accept(context.Background(), []byte(validPayload))
		assert.ErrorIs(t, err, ErrNoPrice)
	})
}

func TestAcceptDeduplicates(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, fixedPrices{price: 100}, &countingPlanner{})

	_, _, err := svc.Accept(context.Background(), []byte(validPayload))
	require.NoError(t, err)

	_, _, err = svc.Accept(context.Background(), []byte(validPayload))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, store.rows, 1)

	// a different entry level from the same provider passes
	other := `{"provider_id":1,"symbol":"BTCUSDT","side":"long","entry":101}`
	_, _, err = svc.Accept(context.Background(), []byte(other))
	assert.NoError(t, err)

	// the same key from another provider passes too
	otherProvider := `{"provider_id":2,"symbol":"BTCUSDT","side":"long","entry":100}`
	_, _, err = svc.Accept(context.Background(), []byte(otherProvider))
	assert.NoError(t, err)
}

func TestDedupWindowEviction(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, fixedPrices{price: 100}, &countingPlanner{})

	first := `{"provider_id":1,"symbol":"BTCUSDT","side":"long","entry":100}`
	_, _, err := svc.Accept(context.Background(), []byte(first))
	require.NoError(t, err)

	// push the first key out of the window
	for i := 0; i < dedupWindow; i++ {
		svc.remember(types.Signal{ProviderID: 1, Symbol: "ETHUSDT", Side: types.SideLong, Entry: float64(1000 + i)})
	}

	_, _, err = svc.Accept(context.Background(), []byte(first))
	assert.NoError(t, err, "evicted key is accepted again")
}
