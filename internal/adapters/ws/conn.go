package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/core"
)

// Conn implements core.Transport over one websocket.
type Conn struct {
	conn *websocket.Conn
	gen  uint64
	sink core.Sink
	opts Options

	ctx  context.Context
	send chan core.Unit
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newConn(ctx context.Context, ws *websocket.Conn, gen uint64, sink core.Sink, opts Options) *Conn {
	return &Conn{
		conn: ws,
		gen:  gen,
		sink: sink,
		opts: opts,
		ctx:  ctx,
		send: make(chan core.Unit, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) TrySend(u core.Unit) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- u:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops both pumps. Units still buffered are not flushed.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.writeClose()
			return
		case <-c.done:
			c.writeClose()
			return
		case u := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
				return
			}
			mt := websocket.TextMessage
			if u.Kind == core.UnitBinary {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, u.Data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Uint64("gen", c.gen).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ws").Uint64("gen", c.gen).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Conn) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
}

func (c *Conn) readPump() {
	var cause error
	defer func() {
		c.Close()
		_ = c.conn.Close()
		log.Info().Str("module", "adapters.ws").Uint64("gen", c.gen).Int("code", core.CloseCode(cause)).Msg("readPump closing")
		c.sink(core.Event{Kind: core.EventClosed, Gen: c.gen, Err: cause})
	}()

	pongWait := c.opts.PingPeriod * 10 / 9
	if c.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(c.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			cause = c.closeCause(err)
			return
		}
		switch mt {
		case websocket.TextMessage:
			c.sink(core.Event{Kind: core.EventMessage, Gen: c.gen, Unit: core.Text(data)})
		case websocket.BinaryMessage:
			c.sink(core.Event{Kind: core.EventMessage, Gen: c.gen, Unit: core.Binary(data)})
		}
	}
}

func (c *Conn) closeCause(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &core.CloseError{Code: ce.Code, Reason: ce.Text}
	}
	if c.isClosed() {
		return &core.CloseError{Code: core.CloseNormal, Reason: "closed locally"}
	}
	return &core.CloseError{Code: core.CloseAbnormal, Reason: err.Error()}
}
