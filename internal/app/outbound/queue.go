// Package outbound buffers units awaiting transmission. The buffer is
// bounded: when it is full new units are rejected, never silently kept.
package outbound

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/watchsync/internal/core"
)

var (
	ErrQueueFull = errors.New("outbound queue full")
	ErrOversized = errors.New("binary unit exceeds size limit")
)

const (
	DefaultCapacity       = 200
	DefaultMaxBinaryBytes = 5 << 20
	DefaultRateLimit      = 30
	DefaultRateWindow     = time.Second
	DefaultRateDelay      = 50 * time.Millisecond
)

type Options struct {
	Capacity       int
	MaxBinaryBytes int
	RateLimit      int
	RateWindow     time.Duration
	RateDelay      time.Duration
}

func DefaultOptions() Options {
	return Options{
		Capacity:       DefaultCapacity,
		MaxBinaryBytes: DefaultMaxBinaryBytes,
		RateLimit:      DefaultRateLimit,
		RateWindow:     DefaultRateWindow,
		RateDelay:      DefaultRateDelay,
	}
}

// Envelope lives only inside the queue; it is dropped once sent or abandoned.
type Envelope struct {
	Unit       core.Unit
	EnqueuedAt time.Time
}

// Queue is a FIFO of envelopes with no priority between control and binary units.
type Queue struct {
	opts   Options
	items  []Envelope
	window *Window
}

func New(opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.RateDelay <= 0 {
		opts.RateDelay = DefaultRateDelay
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	return &Queue{
		opts:   opts,
		items:  make([]Envelope, 0, opts.Capacity),
		window: NewWindow(opts.RateLimit, opts.RateWindow),
	}
}

func (q *Queue) Len() int { return len(q.items) }
func (q *Queue) Cap() int { return q.opts.Capacity }

// Enqueue accepts u or reports why it was dropped.
func (q *Queue) Enqueue(u core.Unit, now time.Time) error {
	if u.Kind == core.UnitBinary && q.opts.MaxBinaryBytes > 0 && len(u.Data) > q.opts.MaxBinaryBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrOversized, len(u.Data), q.opts.MaxBinaryBytes)
	}
	if len(q.items) >= q.opts.Capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, Envelope{Unit: u, EnqueuedAt: now})
	return nil
}

// Drain sends queued units in order until the queue is empty, the send
// window is saturated, or send fails. It returns how long to wait before
// draining again; zero means the queue is empty. A failed unit stays at
// the head and the error is returned.
func (q *Queue) Drain(now time.Time, send func(core.Unit) error) (time.Duration, error) {
	for len(q.items) > 0 {
		if q.window.Full(now) {
			return q.opts.RateDelay, nil
		}
		if err := send(q.items[0].Unit); err != nil {
			return q.opts.RateDelay, err
		}
		q.window.Add(now)
		q.items[0] = Envelope{}
		q.items = q.items[1:]
	}
	return 0, nil
}

// Abandon drops every queued unit without sending it and returns how many were dropped.
func (q *Queue) Abandon() int {
	n := len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	return n
}
