// Package ristretto adapts dgraph-io/ristretto to both cache backends:
// Store (objects, the usual Memory provider) and Provider (bytes).
package ristretto

import (
	"context"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	pr "github.com/unkn0wn-root/weave/provider"
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// AsyncWrites skips waiting for ristretto's write buffers after Set.
	// Faster, but a Get right after Set may miss.
	AsyncWrites bool
	// Cost of an object entry in Store; 0 => 1. Provider uses payload length.
	ObjectCost int64
}

// DefaultConfig fits a few hundred thousand small entries.
func DefaultConfig() Config {
	return Config{NumCounters: 1e6, MaxCost: 1 << 28, BufferItems: 64}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.NumCounters, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxCost, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.BufferItems, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.ObjectCost, validation.Min(int64(0))),
	)
}

func newCache(cfg Config) (*rc.Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ristretto: invalid config: %w", err)
	}
	return rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
}

// Store keeps method results as-is.
type Store struct {
	c     *rc.Cache
	cost  int64
	async bool
}

var _ pr.Store = (*Store)(nil)

func NewStore(cfg Config) (*Store, error) {
	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	cost := cfg.ObjectCost
	if cost <= 0 {
		cost = 1
	}
	return &Store{c: c, cost: cost, async: cfg.AsyncWrites}, nil
}

func (s *Store) Get(_ context.Context, key string) (any, bool, error) {
	v, ok := s.c.Get(key)
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ok := s.c.SetWithTTL(key, value, s.cost, ttl)
	if ok && !s.async {
		s.c.Wait()
	}
	return ok, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

// Provider is the byte-store flavour, useful as a process-local stand-in for
// a distributed backend.
type Provider struct {
	c     *rc.Cache
	async bool
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	c, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, async: cfg.AsyncWrites}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	if ok && !p.async {
		p.c.Wait()
	}
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
