package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/config"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
)

// Config controls connection timeouts and buffering.
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// ConfigFrom maps the websocket section of the process config.
func ConfigFrom(c config.WebSocketConfig) Config {
	return Config{
		WriteTimeout:   c.WriteTimeout,
		ReadTimeout:    c.ReadTimeout,
		PingInterval:   c.PingInterval,
		MaxMessageSize: c.MaxMessageSize,
		SendBuffer:     c.SendBuffer,
	}
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	return c
}

// Hub maps each customer code to at most one live connection. A later
// registration for the same code replaces the earlier one.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	router   *Router
	log      *zap.Logger

	mu     sync.RWMutex
	byCode map[string]*Conn
	live   map[*Conn]struct{}
}

// NewHub builds a hub. lookup answers the initial balance on register and may be nil.
func NewHub(cfg Config, lookup BalanceLookup) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log:    logger.Named("realtime"),
		byCode: make(map[string]*Conn),
		live:   make(map[*Conn]struct{}),
	}
	h.router = &Router{hub: h, lookup: lookup, timeout: 5 * time.Second}
	return h
}

// Register binds code to c, replacing whatever connection held it before.
// A connection holds at most one code; its previous binding is dropped.
func (h *Hub) Register(code string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, ok := c.bind(code)
	if !ok {
		return false
	}
	if prev != "" && prev != code && h.byCode[prev] == c {
		delete(h.byCode, prev)
	}
	if old, exists := h.byCode[code]; exists && old != c {
		old.unbind()
		h.log.Debug("registration replaced", zap.String("code", code), zap.String("old", old.ID), zap.String("new", c.ID))
	}
	h.byCode[code] = c
	return true
}

// Unregister removes any mapping held by c.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code := c.unbind()
	if code != "" && h.byCode[code] == c {
		delete(h.byCode, code)
	}
}

// Broadcast sends a points_update to the connection registered for code.
// No connection, or a closed or saturated one, is a silent no-op.
func (h *Hub) Broadcast(code string, points int64) bool {
	h.mu.RLock()
	c := h.byCode[code]
	h.mu.RUnlock()

	if c == nil {
		metrics.Broadcasts.WithLabelValues("no_connection").Inc()
		return false
	}
	if !c.enqueueUpdate(encodePointsUpdate(points)) {
		metrics.Broadcasts.WithLabelValues("dropped").Inc()
		h.log.Debug("points_update dropped", zap.String("code", code), zap.String("conn", c.ID))
		return false
	}
	metrics.Broadcasts.WithLabelValues("delivered").Inc()
	return true
}

// NotifyPoints adapts Broadcast to the sync notifier contract.
func (h *Hub) NotifyPoints(_ context.Context, code string, points int64) error {
	h.Broadcast(code, points)
	return nil
}

// Registered reports the connection bound to code, if any.
func (h *Hub) Registered(code string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byCode[code]
	return c, ok
}

// Count is the number of bound customer codes.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byCode)
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	h.live[c] = struct{}{}
	h.mu.Unlock()
	metrics.LiveConnections.Inc()
}

// detach closes c and removes every trace of it from the hub.
func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	code, first := c.close()
	if code != "" && h.byCode[code] == c {
		delete(h.byCode, code)
	}
	_, tracked := h.live[c]
	delete(h.live, c)
	h.mu.Unlock()

	if first && tracked {
		metrics.LiveConnections.Dec()
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, h.cfg.SendBuffer)
	h.attach(c)
	h.log.Debug("connection opened", zap.String("conn", c.ID), zap.String("remote", r.RemoteAddr))

	go c.writePump(h.cfg, h.log)
	h.readPump(r.Context(), c)
}

func (h *Hub) readPump(ctx context.Context, c *Conn) {
	defer func() {
		h.detach(c)
		h.log.Debug("connection closed", zap.String("conn", c.ID))
	}()

	c.ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("unexpected close", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		h.router.Handle(ctx, c, raw)
	}
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.live))
	for c := range h.live {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.detach(c)
	}
}
