package outbound

import "time"

// Window is a sliding-window send counter. It is owned by the event loop
// and is not safe for concurrent use.
type Window struct {
	history  []time.Time
	limit    int
	interval time.Duration
}

func NewWindow(limit int, interval time.Duration) *Window {
	return &Window{
		history:  make([]time.Time, 0, limit),
		limit:    limit,
		interval: interval,
	}
}

// Full reports whether limit sends already happened within the interval before now.
func (w *Window) Full(now time.Time) bool {
	w.evict(now)
	return w.limit > 0 && len(w.history) >= w.limit
}

// Add records a send at now.
func (w *Window) Add(now time.Time) {
	w.history = append(w.history, now)
}

func (w *Window) evict(now time.Time) {
	windowStart := now.Add(-w.interval)
	fresh := w.history[:0]
	for _, t := range w.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	w.history = fresh
}
