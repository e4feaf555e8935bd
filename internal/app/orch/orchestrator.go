// Package orch runs the client event loop. One goroutine owns the link,
// the outbound queue, the multiplexer and every state component; the UI
// talks to it through the methods in api.go and reads Updates().
package orch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/app/link"
	"github.com/dkeye/watchsync/internal/app/mux"
	"github.com/dkeye/watchsync/internal/app/outbound"
	"github.com/dkeye/watchsync/internal/app/playback"
	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/app/session"
	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
)

var ErrStopped = errors.New("orchestrator stopped")

const DefaultUpdatesBuffer = 256

type Config struct {
	Target        link.Target
	LocalUser     domain.UserID
	Username      string
	Link          link.Options
	Outbound      outbound.Options
	Playback      playback.Options
	UpdatesBuffer int
}

// Deps are the collaborators. Only Dialer is required.
type Deps struct {
	Dialer    core.Dialer
	API       core.SessionAPI
	Media     core.MediaGate
	Metrics   *metrics.Metrics
	Scheduler link.Scheduler
	Clock     func() time.Time
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	m    *metrics.Metrics
	now  func() time.Time

	inbox   chan msg
	events  chan core.Event
	updates chan Update
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once

	link     *link.Controller
	queue    *outbound.Queue
	mux      *mux.Mux
	reducer  *session.Reducer
	playback *playback.Sync
	board    *seating.Board

	connState  domain.ConnState
	drainTimer *time.Timer
	route      seating.AudioRoute
	audible    []domain.UserID
	swaps      map[domain.UserID]string
	history    map[domain.SessionID]bool
	terminated bool
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.UpdatesBuffer <= 0 {
		cfg.UpdatesBuffer = DefaultUpdatesBuffer
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		m:        deps.Metrics,
		now:      deps.Clock,
		inbox:    make(chan msg, 64),
		events:   make(chan core.Event, 256),
		updates:  make(chan Update, cfg.UpdatesBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		queue:    outbound.New(cfg.Outbound),
		mux:      mux.New(),
		reducer:  session.New(),
		playback: playback.New(cfg.LocalUser, cfg.Playback),
		board:    seating.New(),
		swaps:    make(map[domain.UserID]string),
		history:  make(map[domain.SessionID]bool),
	}
	o.connState = domain.ConnClosed
	o.link = link.New(context.Background(), cfg.Link, deps.Dialer, cfg.Target, o.sink)
	if deps.Scheduler != nil {
		o.link.WithScheduler(deps.Scheduler)
	}
	o.drainTimer = time.NewTimer(time.Hour)
	o.drainTimer.Stop()
	return o
}

// Updates is closed when Run returns.
func (o *Orchestrator) Updates() <-chan Update { return o.updates }

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Close stops the loop; Run then tears the link down and drops the queue.
func (o *Orchestrator) Close() {
	o.once.Do(func() { close(o.quit) })
}

// sink is handed to the link and the dialer; it may be called from any goroutine.
func (o *Orchestrator) sink(ev core.Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

// Run connects and processes events until ctx is cancelled or Close is
// called. It must be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.shutdown()

	o.m.SetConnectionState(o.connState)
	o.onLink(o.link.Connect())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.quit:
			return nil
		case ev := <-o.events:
			o.onLink(o.link.Handle(ev))
		case m := <-o.inbox:
			o.pending()
			o.handle(m)
		case <-o.drainTimer.C:
			o.drain()
		}
	}
}

// pending folds transport events that were delivered before a UI command,
// so the command observes them.
func (o *Orchestrator) pending() {
	for {
		select {
		case ev := <-o.events:
			o.onLink(o.link.Handle(ev))
		default:
			return
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.drainTimer.Stop()
	o.link.Close()
	if n := o.queue.Abandon(); n > 0 {
		log.Info().Str("module", "app.orch").Int("dropped", n).Msg("abandoned outbound queue")
	}
	o.m.OutboundDepth.Set(0)
	close(o.done)
	close(o.updates)
}

func (o *Orchestrator) onLink(res link.Result) {
	defer func() {
		if st := o.link.State(); st != o.connState || res.Outcome == link.Lost {
			o.connState = st
			o.m.SetConnectionState(st)
			o.emit(ConnectionChanged{State: st, Attempt: res.Attempt, Delay: res.Delay})
		}
	}()

	switch res.Outcome {
	case link.Ignored:
	case link.Dialing:
		o.reducer.Connecting()
	case link.Opened:
		// every connection starts untrusted until its first session_status
		o.reducer.Connecting()
		o.drain()
	case link.Message:
		o.inbound(res.Unit)
	case link.Lost:
		o.m.ReconnectAttempts.Inc()
		o.reducer.Disconnected()
	case link.Terminal:
		if errors.Is(res.Err, link.ErrRetriesExhausted) {
			o.m.ReconnectExhausted.Inc()
		}
		o.reducer.Fail(res.Err)
		o.emit(SnapshotChanged{Snapshot: o.reducer.Snapshot()})
		o.terminate("", res.Err)
		if n := o.queue.Abandon(); n > 0 {
			log.Warn().Str("module", "app.orch").Int("dropped", n).Msg("link terminal, outbound queue dropped")
		}
		o.m.OutboundDepth.Set(0)
	case link.Closed:
		o.reducer.Disconnected()
	}
}

// drain pushes queued units while the link is open and re-arms the timer
// when the rate window or a full transport buffer holds them back.
func (o *Orchestrator) drain() {
	defer func() { o.m.OutboundDepth.Set(float64(o.queue.Len())) }()
	if o.link.State() != domain.ConnOpen {
		return
	}
	wait, err := o.queue.Drain(o.now(), func(u core.Unit) error {
		if err := o.link.Send(u); err != nil {
			return err
		}
		o.m.OutboundSent.Inc()
		return nil
	})
	if err != nil {
		log.Debug().Str("module", "app.orch").Err(err).Int("queued", o.queue.Len()).Msg("drain paused")
	}
	if wait > 0 {
		o.drainTimer.Reset(wait)
	}
}

// emit never blocks the loop; a lagging UI loses updates.
func (o *Orchestrator) emit(u Update) {
	select {
	case o.updates <- u:
	default:
		o.m.UpdatesDropped.Inc()
		log.Warn().Str("module", "app.orch").Type("update", u).Msg("updates channel full, dropping")
	}
}

func (o *Orchestrator) terminate(reason string, err error) {
	if o.terminated {
		return
	}
	o.terminated = true
	o.emit(Terminated{Reason: reason, Err: err})
}

// refreshRoute recomputes the local audio route and pushes the audible
// set to the media engine when it changed.
func (o *Orchestrator) refreshRoute() {
	route := o.board.ResolveAudioRoute(o.cfg.LocalUser)
	audible := o.board.Audible(o.cfg.LocalUser)
	if route == o.route && slices.Equal(audible, o.audible) {
		return
	}
	o.route = route
	o.audible = audible
	if o.deps.Media != nil {
		o.deps.Media.SetAudible(slices.Clone(audible))
	}
	o.emit(RouteChanged{Route: route, Audible: slices.Clone(audible)})
}

func (o *Orchestrator) seatsChanged() {
	o.emit(SeatsChanged{Seats: o.board.View()})
	o.refreshRoute()
}
