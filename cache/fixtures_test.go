package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/cache"
	pr "github.com/unkn0wn-root/weave/provider"
)

// ==== service under test ====

type User struct {
	ID          int
	Name        string
	RandomToken string
	TimeoutMs   int64
}

// Feed cannot travel through a codec.
type Feed struct {
	ID      int
	Updates chan string
}

type UserService interface {
	GetUser(ctx context.Context, id int) (*User, error)
	UpdateUser(ctx context.Context, user *User) (bool, error)
	DeleteByName(ctx context.Context, name string) (*User, error)
	GetFeed(ctx context.Context, id int) (*Feed, error)
	Purge(ctx context.Context, id int) error
	FailUser(ctx context.Context, id int) (*User, error)
}

var errBackend = errors.New("backend down")

type userService struct {
	runs  atomic.Int64
	onGet func()
}

var _ UserService = (*userService)(nil)

func (s *userService) GetUser(_ context.Context, id int) (*User, error) {
	s.runs.Add(1)
	if s.onGet != nil {
		s.onGet()
	}
	if id != 1 && id != 2 {
		return nil, nil
	}
	return &User{
		ID:          id,
		Name:        fmt.Sprintf("User%d", id),
		RandomToken: uuid.NewString(),
		TimeoutMs:   int64(id) * 1000,
	}, nil
}

func (s *userService) UpdateUser(_ context.Context, user *User) (bool, error) {
	s.runs.Add(1)
	return user != nil, nil
}

func (s *userService) DeleteByName(_ context.Context, name string) (*User, error) {
	s.runs.Add(1)
	var id int
	if _, err := fmt.Sscanf(name, "User%d", &id); err != nil {
		return nil, nil
	}
	return &User{ID: id, Name: name}, nil
}

func (s *userService) GetFeed(_ context.Context, id int) (*Feed, error) {
	s.runs.Add(1)
	return &Feed{ID: id}, nil
}

func (s *userService) Purge(context.Context, int) error {
	s.runs.Add(1)
	return nil
}

func (s *userService) FailUser(context.Context, int) (*User, error) {
	s.runs.Add(1)
	return &User{ID: -1}, errBackend
}

// declaredUserService carries its cache policies as markers.
type declaredUserService struct{ userService }

func (*declaredUserService) CachePolicies() []cache.Marker {
	return []cache.Marker{
		cache.Cacheable("GetUser", "user-{id}"),
		cache.CacheRemove("UpdateUser", "user-{user.ID}"),
		cache.CacheRemove("DeleteByName", "user-{_ret.ID}"),
	}
}

var (
	getUser      = weave.Func[*User]("GetUser", weave.Arg[int]("id"))
	updateUser   = weave.Func[bool]("UpdateUser", weave.Arg[*User]("user"))
	deleteByName = weave.Func[*User]("DeleteByName", weave.Arg[string]("name"))
	getFeed      = weave.Func[*Feed]("GetFeed", weave.Arg[int]("id"))
	purge        = weave.Proc("Purge", weave.Arg[int]("id"))
	failUser     = weave.Func[*User]("FailUser", weave.Arg[int]("id"))

	userMethods = []weave.Method{getUser, updateUser, deleteByName, getFeed, purge, failUser}
)

type userServiceProxy struct {
	d    *weave.Dispatcher
	impl UserService
}

func (p *userServiceProxy) GetUser(ctx context.Context, id int) (*User, error) {
	return weave.Invoke(ctx, p.d, getUser, func(ctx context.Context) (*User, error) {
		return p.impl.GetUser(ctx, id)
	}, id)
}

func (p *userServiceProxy) UpdateUser(ctx context.Context, user *User) (bool, error) {
	return weave.Invoke(ctx, p.d, updateUser, func(ctx context.Context) (bool, error) {
		return p.impl.UpdateUser(ctx, user)
	}, user)
}

func (p *userServiceProxy) DeleteByName(ctx context.Context, name string) (*User, error) {
	return weave.Invoke(ctx, p.d, deleteByName, func(ctx context.Context) (*User, error) {
		return p.impl.DeleteByName(ctx, name)
	}, name)
}

func (p *userServiceProxy) GetFeed(ctx context.Context, id int) (*Feed, error) {
	return weave.Invoke(ctx, p.d, getFeed, func(ctx context.Context) (*Feed, error) {
		return p.impl.GetFeed(ctx, id)
	}, id)
}

func (p *userServiceProxy) Purge(ctx context.Context, id int) error {
	return weave.InvokeVoid(ctx, p.d, purge, func(ctx context.Context) error {
		return p.impl.Purge(ctx, id)
	}, id)
}

func (p *userServiceProxy) FailUser(ctx context.Context, id int) (*User, error) {
	return weave.Invoke(ctx, p.d, failUser, func(ctx context.Context) (*User, error) {
		return p.impl.FailUser(ctx, id)
	}, id)
}

// ==== fake backends ====

type memEntry struct {
	v   any
	exp time.Time // zero => no TTL
}

type memStore struct {
	mu     sync.Mutex
	m      map[string]memEntry
	failOn error
}

var _ pr.Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{m: make(map[string]memEntry)} }

func (s *memStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return nil, false, s.failOn
	}
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return false, s.failOn
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (s *memStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStore) Close(context.Context) error { return nil }

func (s *memStore) put(key string, v any) {
	s.mu.Lock()
	s.m[key] = memEntry{v: v}
	s.mu.Unlock()
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v.([]byte), true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: value, exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

// ==== hooks recorder ====

type recHooks struct {
	cache.NopHooks
	mu         sync.Mutex
	hits       int
	stored     int
	skipped    []string
	mismatches int
	selfHeals  int
}

func (h *recHooks) Hit(string, string, cache.Provider) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}

func (h *recHooks) Stored(string, string, cache.Provider, time.Duration) {
	h.mu.Lock()
	h.stored++
	h.mu.Unlock()
}

func (h *recHooks) Skipped(_, _, reason string) {
	h.mu.Lock()
	h.skipped = append(h.skipped, reason)
	h.mu.Unlock()
}

func (h *recHooks) TypeMismatch(string, string, string, string) {
	h.mu.Lock()
	h.mismatches++
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(string, string) {
	h.mu.Lock()
	h.selfHeals++
	h.mu.Unlock()
}

// ==== helpers ====

const testPrefix = "test:"

type fixture struct {
	svc     UserService
	impl    *userService
	reg     *weave.Registry
	chain   *weave.Chain
	mem     *memStore
	dist    *memProvider
	hooks   *recHooks
	manager *cache.Manager
}

// configureUsers builds a chain for *userService and adds a cache aspect.
func configureUsers(opts cache.Options, setup *cache.Setup) (*weave.Registry, *weave.Chain, error) {
	reg := weave.NewRegistry(weave.RegistryOptions{})
	chain := weave.For[UserService, *userService](reg, userMethods...)
	return reg, chain, chain.Configure(cache.Factory(opts, setup))
}

func newFixture(t *testing.T, setup *cache.Setup, mutate func(*cache.Options)) *fixture {
	t.Helper()
	f := &fixture{impl: &userService{}, mem: newMemStore(), dist: newMemProvider(), hooks: &recHooks{}}
	opts := cache.Options{Memory: f.mem, Distributed: f.dist, Hooks: f.hooks}
	if mutate != nil {
		mutate(&opts)
	}
	if setup != nil {
		setup.KeyPrefix(testPrefix)
	}

	var err error
	f.reg, f.chain, err = configureUsers(opts, setup)
	require.NoError(t, err)

	f.svc = &userServiceProxy{d: weave.NewDispatcher(f.chain, f.impl), impl: f.impl}
	f.manager, err = cache.ManagerFor[UserService, *userService](f.reg)
	require.NoError(t, err)
	return f
}

func (f *fixture) runs() int64 { return f.impl.runs.Load() }

// mustUser is used as mustUser(t)(svc.GetUser(ctx, 1)).
func mustUser(t *testing.T) func(*User, error) *User {
	return func(u *User, err error) *User {
		t.Helper()
		require.NoError(t, err)
		require.NotNil(t, u)
		return u
	}
}
