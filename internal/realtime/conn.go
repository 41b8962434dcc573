package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/util"
)

// State of a live connection. CLOSED is terminal.
type State int32

const (
	StateOpen State = iota
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateRegistered:
		return "registered"
	default:
		return "closed"
	}
}

// Conn is one client channel. Outbound frames go through send and are
// written by a single writer goroutine.
type Conn struct {
	ID string

	ws   *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	state State
	code  string

	// gen counts bindings; updated is set once a broadcast reached the
	// current binding.
	gen     uint64
	updated bool
}

func newConn(ws *websocket.Conn, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 16
	}
	return &Conn{
		ID:   util.NewID(),
		ws:   ws,
		send: make(chan []byte, buffer),
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Code returns the bound customer code, empty when unbound.
func (c *Conn) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// bind moves the connection to REGISTERED and returns the previous code.
// A closed connection cannot be bound.
func (c *Conn) bind(code string) (prev string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return "", false
	}
	prev = c.code
	c.code = code
	c.state = StateRegistered
	c.gen++
	c.updated = false
	return prev, true
}

func (c *Conn) binding() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Conn) unbind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.code
	c.code = ""
	c.gen++
	if c.state == StateRegistered {
		c.state = StateOpen
	}
	return prev
}

// enqueue never blocks: a full buffer drops the frame.
func (c *Conn) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	return c.offer(msg)
}

// offer must be called with mu held on an open connection.
func (c *Conn) offer(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// enqueueUpdate delivers a broadcast and marks the binding as updated, even
// when the frame is dropped.
func (c *Conn) enqueueUpdate(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.updated = true
	return c.offer(msg)
}

// enqueueInitial sends the register reply only if binding gen is still current
// and no broadcast has overtaken it.
func (c *Conn) enqueueInitial(gen uint64, msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRegistered || c.gen != gen || c.updated {
		return false
	}
	return c.offer(msg)
}

// close marks the connection CLOSED and releases the writer. Safe to call twice.
func (c *Conn) close() (code string, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return "", false
	}
	c.state = StateClosed
	code = c.code
	c.code = ""
	close(c.send)
	return code, true
}

func (c *Conn) writePump(cfg Config, log *zap.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("write failed", zap.String("conn", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
