package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type genEntry struct {
	gen       uint64
	updatedAt time.Time
}

var _ GenStore = (*LocalGenStore)(nil)

// LocalGenStore keeps generations in-process.
// An optional cleanup loop prunes long-inactive keys. Pruning resets a key to
// 0, which only matters for calls in flight longer than the retention.
type LocalGenStore struct {
	gens   *xsync.MapOf[string, genEntry]
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: xsync.NewMapOf[string, genEntry]()}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, key string) (uint64, error) {
	e, _ := s.gens.Load(key)
	return e.gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	e, _ := s.gens.Compute(key, func(old genEntry, _ bool) (genEntry, bool) {
		return genEntry{gen: old.gen + 1, updatedAt: now}, false
	})
	return e.gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.gens.Range(func(key string, e genEntry) bool {
		if e.updatedAt.Before(cutoff) {
			// re-check under the bucket lock; a concurrent Bump keeps the key
			s.gens.Compute(key, func(cur genEntry, loaded bool) (genEntry, bool) {
				return cur, !loaded || cur.updatedAt.Before(cutoff)
			})
		}
		return true
	})
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
