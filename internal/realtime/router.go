package realtime

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

// BalanceLookup answers the current balance for a customer code.
type BalanceLookup interface {
	Lookup(ctx context.Context, code string) (int64, error)
}

// LookupFunc adapts a function to BalanceLookup.
type LookupFunc func(ctx context.Context, code string) (int64, error)

func (f LookupFunc) Lookup(ctx context.Context, code string) (int64, error) { return f(ctx, code) }

// Router dispatches decoded client frames for one hub.
type Router struct {
	hub     *Hub
	lookup  BalanceLookup
	timeout time.Duration
}

// Handle decodes raw and acts on it. Malformed frames get an error reply.
func (r *Router) Handle(ctx context.Context, c *Conn, raw []byte) {
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		c.enqueue(encodeError(err.Error()))
		return
	}

	switch m := msg.(type) {
	case RegisterMessage:
		r.register(ctx, c, m.CustomerCode)
	case UnregisterMessage:
		r.hub.Unregister(c)
	case PingMessage:
		c.enqueue(encodePong())
	}
}

// register binds the code and sends the current balance so the page starts in
// sync. A broadcast that lands while the lookup is in flight wins over it.
func (r *Router) register(ctx context.Context, c *Conn, code string) {
	if !r.hub.Register(code, c) {
		return
	}
	if r.lookup == nil {
		return
	}
	gen := c.binding()

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	points, err := r.lookup.Lookup(lctx, code)
	switch {
	case errors.Is(err, model.ErrCustomerNotFound):
		if c.binding() == gen {
			r.hub.Unregister(c)
		}
		c.enqueue(encodeError("unknown customer code"))
	case err != nil:
		r.hub.log.Warn("initial balance lookup failed", zap.String("code", code), zap.Error(err))
	default:
		if !c.enqueueInitial(gen, encodePointsUpdate(points)) {
			r.hub.log.Debug("initial balance superseded", zap.String("code", code), zap.String("conn", c.ID))
		}
	}
}
