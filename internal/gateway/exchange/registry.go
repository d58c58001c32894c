package exchange

import (
	"fmt"
	"time"

	"sigtrade/internal/pkg/circuit"
	"sigtrade/internal/types"
)

// Registry resolves a typed exchange id to its gateway, built once at
// startup. Every call runs through a per-exchange circuit breaker so one
// failing venue trips open instead of burning the tick budget.
type Registry struct {
	gateways map[types.Exchange]Gateway
	breakers map[types.Exchange]*circuit.CircuitBreaker
}

const (
	breakerThreshold = 5
	breakerTimeout   = 2 * time.Minute
)

func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[types.Exchange]Gateway),
		breakers: make(map[types.Exchange]*circuit.CircuitBreaker),
	}
}

// Register binds a gateway to its exchange id. Later registrations replace
// earlier ones; the breaker is reset alongside.
func (r *Registry) Register(ex types.Exchange, gw Gateway) {
	if gw == nil {
		return
	}
	r.gateways[ex] = gw
	r.breakers[ex] = circuit.NewCircuitBreaker(gw.Name(), breakerThreshold, breakerTimeout)
}

// Resolve returns the gateway for ex.
func (r *Registry) Resolve(ex types.Exchange) (Gateway, error) {
	gw, ok := r.gateways[ex]
	if !ok {
		return nil, fmt.Errorf("no gateway registered for exchange %s", ex)
	}
	return gw, nil
}

// Exchanges lists the registered exchange ids.
func (r *Registry) Exchanges() []types.Exchange {
	out := make([]types.Exchange, 0, len(r.gateways))
	for ex := range r.gateways {
		out = append(out, ex)
	}
	return out
}

// Call runs fn against the gateway for ex under its circuit breaker.
func (r *Registry) Call(ex types.Exchange, fn func(Gateway) error) error {
	gw, err := r.Resolve(ex)
	if err != nil {
		return err
	}
	cb, ok := r.breakers[ex]
	if !ok || cb == nil {
		return fn(gw)
	}
	return cb.Call(func() error { return fn(gw) })
}

// Trade executes a trade-call closure and normalizes breaker rejections
// into an OrderResult the engine can treat as a transient failure.
func (r *Registry) Trade(ex types.Exchange, fn func(Gateway) OrderResult) OrderResult {
	var res OrderResult
	ran := false
	err := r.Call(ex, func(gw Gateway) error {
		ran = true
		res = fn(gw)
		if res.OK {
			return nil
		}
		return fmt.Errorf("%s: %s", res.Code, res.Message)
	})
	if !ran {
		// Breaker (or registry) rejected before the gateway ran.
		return Failed(CodeUnknown, err.Error(), "")
	}
	return res
}
