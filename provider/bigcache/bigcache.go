// Package bigcache adapts allegro/bigcache/v3 as a byte Provider.
//
// BigCache only knows a global LifeWindow, so every entry is stored with an
// 8-byte expiry header and expired entries are dropped on read. A TTL longer
// than LifeWindow is effectively capped by it.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/weave/provider"
)

const (
	headerLen         = 8
	defaultLifeWindow = 24 * time.Hour
)

type Provider struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // upper bound for any entry; 0 => 24h
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) < headerLen {
		// self-heal: not written by this adapter
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(b[:headerLen])); exp != 0 && p.now().UnixNano() >= exp {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return b[headerLen:], true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp int64
	if ttl > 0 {
		exp = p.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, headerLen+len(value))
	binary.BigEndian.PutUint64(buf[:headerLen], uint64(exp))
	copy(buf[headerLen:], value)
	return true, p.c.Set(key, buf)
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
