package routing

import (
	"container/list"
	"sync"
	"time"
)

// RateLimiter is a per-sender sliding-window counter, LRU-evicted to
// bound memory at MaxTracked entries (spec.md §4.7 step 7). No pack
// dependency covers sliding-window-by-sender rate limiting
// (golang.org/x/time/rate is token-bucket, a different contract), so
// this is hand-rolled per DESIGN.md.
type RateLimiter struct {
	mu            sync.Mutex
	window        time.Duration
	maxTracked    int
	now           func() time.Time
	entries       map[string]*list.Element
	order         *list.List // front = most recently used
}

type rlEntry struct {
	key       string
	timestamps []time.Time
}

// NewRateLimiter constructs a limiter over the given sliding window,
// capped at maxTracked tracked senders.
func NewRateLimiter(window time.Duration, maxTracked int, nowFn func() time.Time) *RateLimiter {
	if maxTracked <= 0 {
		maxTracked = 10000
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &RateLimiter{
		window:     window,
		maxTracked: maxTracked,
		now:        nowFn,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Allow records a call attempt for key and reports whether it is within
// limit (fewer than limit calls in the trailing window, limit
// inclusive — the call being recorded counts toward the window).
func (r *RateLimiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	el, ok := r.entries[key]
	var e *rlEntry
	if ok {
		e = el.Value.(*rlEntry)
		r.order.MoveToFront(el)
	} else {
		e = &rlEntry{key: key}
		el = r.order.PushFront(e)
		r.entries[key] = el
		r.evictIfNeeded()
	}

	cutoff := now.Add(-r.window)
	kept := e.timestamps[:0]
	for _, t := range e.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.timestamps = kept

	if len(e.timestamps) >= limit {
		return false
	}
	e.timestamps = append(e.timestamps, now)
	return true
}

func (r *RateLimiter) evictIfNeeded() {
	for len(r.entries) > r.maxTracked {
		back := r.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*rlEntry)
		delete(r.entries, e.key)
		r.order.Remove(back)
	}
}
