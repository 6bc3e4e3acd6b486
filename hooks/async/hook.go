// Package asynchook moves cache hook delivery off the request path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{HitEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker, queue 1000 events
//	defer hooks.Close()
//
//	aspect, _ := cache.New(cache.Options{Memory: store, Hooks: hooks}, setup)
//
// Events are dropped when the queue is full; Dropped reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/weave/cache"
)

type Hooks struct {
	inner   cache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ cache.Hooks = (*Hooks)(nil)

func New(inner cache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = cache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events sent afterwards are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(m, k string, p cache.Provider)  { h.try(func() { h.inner.Hit(m, k, p) }) }
func (h *Hooks) Miss(m, k string, p cache.Provider) { h.try(func() { h.inner.Miss(m, k, p) }) }
func (h *Hooks) Stored(m, k string, p cache.Provider, ttl time.Duration) {
	h.try(func() { h.inner.Stored(m, k, p, ttl) })
}
func (h *Hooks) Removed(m, k string, p cache.Provider) { h.try(func() { h.inner.Removed(m, k, p) }) }
func (h *Hooks) Skipped(m, k, r string)                { h.try(func() { h.inner.Skipped(m, k, r) }) }
func (h *Hooks) TypeMismatch(m, k, got, want string) {
	h.try(func() { h.inner.TypeMismatch(m, k, got, want) })
}
func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderError(op, k string, err error) {
	h.try(func() { h.inner.ProviderError(op, k, err) })
}
func (h *Hooks) GenError(k string, err error) { h.try(func() { h.inner.GenError(k, err) }) }
