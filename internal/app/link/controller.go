// Package link keeps one connection to the session server alive. It owns
// the connection state and replaces dead transports with bounded retries.
package link

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
)

var (
	ErrNotOpen           = errors.New("link not open")
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
	ErrSessionTerminated = errors.New("session terminated")
)

const (
	DefaultBaseDelay   = time.Second
	DefaultCapDelay    = 10 * time.Second
	DefaultMaxAttempts = 5
)

type Options struct {
	BaseDelay     time.Duration
	CapDelay      time.Duration
	MaxAttempts   int
	TerminalCodes []int
}

func DefaultOptions() Options {
	return Options{
		BaseDelay:   DefaultBaseDelay,
		CapDelay:    DefaultCapDelay,
		MaxAttempts: DefaultMaxAttempts,
		TerminalCodes: []int{
			core.CloseUnauthorized,
			core.CloseForbidden,
			core.CloseSessionNotFound,
			core.CloseSessionEnded,
		},
	}
}

// Scheduler runs fire after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fire func()) (stop func())

func timeScheduler(d time.Duration, fire func()) func() {
	t := time.AfterFunc(d, fire)
	return func() { t.Stop() }
}

type Outcome int

const (
	Ignored Outcome = iota
	Dialing
	Opened
	Message
	Lost
	Terminal
	Closed
)

func (o Outcome) String() string {
	return [...]string{"ignored", "dialing", "opened", "message", "lost", "terminal", "closed"}[o]
}

// Result tells the event loop what an event meant.
type Result struct {
	Outcome Outcome
	Unit    core.Unit
	Attempt int
	Delay   time.Duration
	Err     error
}

// Controller is the reconnection controller. All methods except the
// dial goroutine it spawns must be called from the owning event loop.
type Controller struct {
	opts     Options
	dialer   core.Dialer
	target   Target
	sink     core.Sink
	schedule Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	state     domain.ConnState
	gen       uint64
	attempt   int
	dialing   bool
	pending   bool
	stopRetry func()
	transport core.Transport
	closing   bool
	err       error
}

// New builds a controller that posts transport and timer events to sink.
func New(ctx context.Context, opts Options, dialer core.Dialer, target Target, sink core.Sink) *Controller {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.CapDelay < opts.BaseDelay {
		opts.CapDelay = opts.BaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		opts:     opts,
		dialer:   dialer,
		target:   target,
		sink:     sink,
		schedule: timeScheduler,
		ctx:      ctx,
		cancel:   cancel,
		state:    domain.ConnClosed,
	}
}

// WithScheduler replaces the retry timer; used by tests.
func (c *Controller) WithScheduler(s Scheduler) *Controller {
	c.schedule = s
	return c
}

func (c *Controller) State() domain.ConnState { return c.state }
func (c *Controller) Attempt() int            { return c.attempt }
func (c *Controller) Err() error              { return c.err }

// Delay is the wait before retry number attempt.
func (c *Controller) Delay(attempt int) time.Duration {
	d := c.opts.BaseDelay * time.Duration(attempt)
	if d > c.opts.CapDelay {
		return c.opts.CapDelay
	}
	return d
}

// Connect starts a dial unless one is in flight, a retry is pending, the
// link is open, or it was closed for good.
func (c *Controller) Connect() Result {
	if c.dialing || c.pending || c.state == domain.ConnOpen || c.closing || c.err != nil {
		return Result{Outcome: Ignored, Attempt: c.attempt}
	}
	c.dial()
	return Result{Outcome: Dialing, Attempt: c.attempt}
}

func (c *Controller) dial() {
	c.gen++
	c.dialing = true
	c.state = domain.ConnConnecting
	gen := c.gen

	url, err := c.target.URL()
	if err != nil {
		go c.sink(core.Event{Kind: core.EventClosed, Gen: gen, Err: err})
		return
	}
	log.Info().Str("module", "app.link").Uint64("gen", gen).Int("attempt", c.attempt).Msg("dialing")
	go func() {
		if err := c.dialer.Dial(c.ctx, url, gen, c.sink); err != nil {
			c.sink(core.Event{Kind: core.EventClosed, Gen: gen, Err: err})
		}
	}()
}

// Handle folds one event into the connection state.
func (c *Controller) Handle(ev core.Event) Result {
	if ev.Gen != c.gen {
		if ev.Kind == core.EventOpened && ev.Transport != nil {
			ev.Transport.Close()
		}
		return Result{Outcome: Ignored}
	}

	switch ev.Kind {
	case core.EventOpened:
		if c.closing || c.err != nil {
			ev.Transport.Close()
			return Result{Outcome: Ignored}
		}
		c.dialing = false
		c.transport = ev.Transport
		c.state = domain.ConnOpen
		c.attempt = 0
		log.Info().Str("module", "app.link").Uint64("gen", ev.Gen).Msg("link open")
		return Result{Outcome: Opened}

	case core.EventMessage:
		if c.state != domain.ConnOpen {
			return Result{Outcome: Ignored}
		}
		return Result{Outcome: Message, Unit: ev.Unit}

	case core.EventClosed:
		return c.onClosed(ev.Err)

	case core.EventRetryDue:
		if !c.pending {
			return Result{Outcome: Ignored}
		}
		c.pending = false
		c.stopRetry = nil
		c.dial()
		return Result{Outcome: Dialing, Attempt: c.attempt}
	}
	return Result{Outcome: Ignored}
}

func (c *Controller) onClosed(cause error) Result {
	c.dialing = false
	c.transport = nil

	if c.closing {
		c.state = domain.ConnClosed
		return Result{Outcome: Closed}
	}

	code := core.CloseCode(cause)
	if c.err != nil {
		c.state = domain.ConnClosed
		log.Info().Str("module", "app.link").Int("code", code).Err(cause).Msg("terminated link closed")
		return Result{Outcome: Terminal, Err: c.err}
	}
	if slices.Contains(c.opts.TerminalCodes, code) {
		c.state = domain.ConnClosed
		c.err = fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
		log.Warn().Str("module", "app.link").Int("code", code).Err(cause).Msg("terminal close, not reconnecting")
		return Result{Outcome: Terminal, Err: c.err}
	}

	c.attempt++
	if c.attempt > c.opts.MaxAttempts {
		c.state = domain.ConnClosed
		c.err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.opts.MaxAttempts, cause)
		log.Error().Str("module", "app.link").Int("attempts", c.opts.MaxAttempts).Err(cause).Msg("giving up")
		return Result{Outcome: Terminal, Err: c.err, Attempt: c.attempt - 1}
	}

	delay := c.Delay(c.attempt)
	gen := c.gen
	c.state = domain.ConnConnecting
	c.pending = true
	c.stopRetry = c.schedule(delay, func() {
		c.sink(core.Event{Kind: core.EventRetryDue, Gen: gen})
	})
	log.Warn().Str("module", "app.link").Int("code", code).Int("attempt", c.attempt).
		Dur("delay", delay).Err(cause).Msg("connection lost, retry scheduled")
	return Result{Outcome: Lost, Attempt: c.attempt, Delay: delay, Err: cause}
}

// Terminate marks the session over without closing the transport: the
// open link keeps delivering, but its loss is terminal and nothing is redialed.
func (c *Controller) Terminate(cause error) {
	if c.err != nil || c.closing {
		return
	}
	c.err = fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
	if c.pending {
		c.pending = false
		c.state = domain.ConnClosed
	}
	log.Info().Str("module", "app.link").Err(cause).Msg("link terminated, reconnect disabled")
}

// Resume lifts Terminate when a new session starts on the still open link.
// It reports false when there is no open link to resume.
func (c *Controller) Resume() bool {
	if c.err == nil || c.closing || c.state != domain.ConnOpen {
		return false
	}
	c.err = nil
	return true
}

// Send hands u to the open transport.
func (c *Controller) Send(u core.Unit) error {
	if c.state != domain.ConnOpen || c.transport == nil {
		return ErrNotOpen
	}
	return c.transport.TrySend(u)
}

// Close tears the link down for good: the pending retry is cancelled,
// in-flight dials are abandoned and the transport is closed.
func (c *Controller) Close() {
	if c.closing {
		return
	}
	c.closing = true
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
	c.pending = false
	c.cancel()
	if c.transport != nil {
		c.state = domain.ConnClosing
		c.transport.Close()
		return
	}
	c.state = domain.ConnClosed
}
