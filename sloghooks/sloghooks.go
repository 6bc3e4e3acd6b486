// Package sloghooks reports cache events through log/slog.
package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/weave/cache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to the xxhash64 of the key in hex.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ cache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(method, key string, p cache.Provider) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("weave.cache.hit",
		"method", method,
		"key", h.redact(key),
		"provider", p.String())
}

func (h *Hooks) Miss(method, key string, p cache.Provider) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("weave.cache.miss",
		"method", method,
		"key", h.redact(key),
		"provider", p.String())
}

func (h *Hooks) Stored(method, key string, p cache.Provider, ttl time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("weave.cache.stored",
		"method", method,
		"key", h.redact(key),
		"provider", p.String(),
		"ttl", ttl)
}

func (h *Hooks) Removed(method, key string, p cache.Provider) {
	if h.l == nil {
		return
	}
	h.l.Debug("weave.cache.removed",
		"method", method,
		"key", h.redact(key),
		"provider", p.String())
}

func (h *Hooks) Skipped(method, key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("weave.cache.skipped",
		"method", method,
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) TypeMismatch(method, key, got, want string) {
	if h.l == nil {
		return
	}
	h.l.Warn("weave.cache.type_mismatch",
		"method", method,
		"key", h.redact(key),
		"got", got,
		"want", want)
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Info("weave.cache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) ProviderError(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("weave.cache.provider_error",
		"op", op,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) GenError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("weave.cache.gen_error",
		"key", h.redact(key),
		"err", err)
}
