package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sigtrade/internal/intake"
	"sigtrade/internal/store/model"
	"sigtrade/internal/types"
)

type stubStore struct {
	positions     []model.Position
	orders        []model.Order
	gotStatus     types.OrderStatus
	gotPositionID int64
}

func (s *stubStore) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.positions, nil
}

func (s *stubStore) OrdersByStatus(ctx context.Context, status types.OrderStatus, limit int) ([]model.Order, error) {
	s.gotStatus = status
	return s.orders, nil
}

func (s *stubStore) OrdersByPosition(ctx context.Context, positionID int64) ([]model.Order, error) {
	s.gotPositionID = positionID
	return s.orders, nil
}

type stubIntake struct {
	sig   types.Signal
	plans int
	err   error
	raw   []byte
}

func (s *stubIntake) Accept(ctx context.Context, raw []byte) (types.Signal, int, error) {
	s.raw = raw
	return s.sig, s.plans, s.err
}

type stubTicker struct {
	runs int
	err  error
}

func (s *stubTicker) RunTick(ctx context.Context) error {
	s.runs++
	return s.err
}

func newTestServer(t *testing.T, token string) (*Server, *stubStore, *stubIntake, *stubTicker) {
	t.Helper()
	st := &stubStore{}
	in := &stubIntake{sig: types.Signal{ID: 7}, plans: 2}
	tk := &stubTicker{}
	srv, err := NewServer(ServerConfig{Addr: ":0", Token: token, Store: st, Intake: in, Engine: tk})
	require.NoError(t, err)
	return srv, st, in, tk
}

func do(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthzOpenWithoutAuth(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "secret")
	w := do(srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenAuthGuardsAPIGroup(t *testing.T) {
	srv, _, _, tk := newTestServer(t, "secret")

	w := do(srv, http.MethodPost, "/api/tick", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, tk.runs)

	w = do(srv, http.MethodPost, "/api/tick", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(srv, http.MethodPost, "/api/tick", "secret", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, tk.runs)
}

func TestPostSignalCreated(t *testing.T) {
	srv, _, in, _ := newTestServer(t, "")
	w := do(srv, http.MethodPost, "/api/signals", "", `{"provider_id":1}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(7), gjson.Get(w.Body.String(), "signal_id").Int())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "plan_groups").Int())
	assert.JSONEq(t, `{"provider_id":1}`, string(in.raw))
}

func TestPostSignalErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{intake.ErrInvalidPayload, http.StatusBadRequest},
		{intake.ErrPriceBand, http.StatusBadRequest},
		{intake.ErrNoPrice, http.StatusBadRequest},
		{intake.ErrDuplicate, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv, _, in, _ := newTestServer(t, "")
		in.err = tc.err
		w := do(srv, http.MethodPost, "/api/signals", "", `{}`)
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)
	}
}

func TestGetOrdersStatusFilter(t *testing.T) {
	srv, st, _, _ := newTestServer(t, "")

	w := do(srv, http.MethodGet, "/api/orders", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.StatusOpen, st.gotStatus, "default listing is open orders")

	w = do(srv, http.MethodGet, "/api/orders?status=executed", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.StatusExecuted, st.gotStatus)

	w = do(srv, http.MethodGet, "/api/orders?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPositionOrders(t *testing.T) {
	srv, st, _, _ := newTestServer(t, "")

	w := do(srv, http.MethodGet, "/api/positions/42/orders", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), st.gotPositionID)

	w = do(srv, http.MethodGet, "/api/positions/abc/orders", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewServerRequiresWiring(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
