package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/cache"
	"github.com/unkn0wn-root/weave/codec"
	"github.com/unkn0wn-root/weave/genstore"
)

// ==== Set / Remove basics ====

func TestSet_SecondCallIsServedFromCache(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	u1 := mustUser(t)(f.svc.GetUser(ctx, 1))
	u2 := mustUser(t)(f.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(1), f.runs())
	assert.Equal(t, u1.RandomToken, u2.RandomToken)
	assert.True(t, f.mem.has(testPrefix+"user-1"))
	assert.Equal(t, 1, f.hooks.hits)
	assert.Equal(t, 1, f.hooks.stored)
}

func TestRemove_InvalidatesByArgumentProperty(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveFor[bool](s, updateUser, "user-{user.ID}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	before := mustUser(t)(f.svc.GetUser(ctx, 1))
	ok, err := f.svc.UpdateUser(ctx, before)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, f.mem.has(testPrefix+"user-1"))

	after := mustUser(t)(f.svc.GetUser(ctx, 1))
	again := mustUser(t)(f.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(3), f.runs())
	assert.NotEqual(t, before.RandomToken, after.RandomToken)
	assert.Equal(t, after.RandomToken, again.RandomToken)
}

func TestRemove_KeyFromReturnValue(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveFor[*User](s, deleteByName, "user-{_ret.ID}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 2))
	require.True(t, f.mem.has(testPrefix+"user-2"))

	mustUser(t)(f.svc.DeleteByName(ctx, "User2"))
	assert.False(t, f.mem.has(testPrefix+"user-2"))
}

func TestRemove_NilReturnValueHasNoKey(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveFor[*User](s, deleteByName, "user-{_ret.ID}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	u, err := f.svc.DeleteByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.True(t, f.mem.has(testPrefix+"user-1"))
	assert.Contains(t, f.hooks.skipped, "no_key")
}

func TestRemoveForVoid_InvalidatesByParameter(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveForVoid(s, purge, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	require.NoError(t, f.svc.Purge(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(3), f.runs())
}

func TestSet_NilResultIsNeverCached(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		u, err := f.svc.GetUser(ctx, 3)
		require.NoError(t, err)
		assert.Nil(t, u)
	}
	assert.Equal(t, int64(2), f.runs())
	assert.False(t, f.mem.has(testPrefix+"user-3"))
	assert.Contains(t, f.hooks.skipped, "nil_result")
}

func TestSet_NilResultSkipsConditionAndOffset(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").
		When(func(u *User) bool { return u.Name == "User1" }).
		TTLOffset(func(u *User) time.Duration { return time.Duration(u.TimeoutMs) * time.Millisecond })
	f := newFixture(t, s, nil)

	u, err := f.svc.GetUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, []string{"nil_result"}, f.hooks.skipped)
}

func TestBlankKeyIsNoKey(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[bool](s, updateUser, "{user.Name}")
	cache.RemoveFor[*User](s, deleteByName, "{name}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t"} {
		ok, err := f.svc.UpdateUser(ctx, &User{ID: 1, Name: name})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int64(3), f.runs(), "blank keys never hit")
	assert.Zero(t, f.hooks.stored)
	assert.False(t, f.mem.has(testPrefix))
	assert.False(t, f.mem.has(testPrefix+"   "))

	f.mem.put(testPrefix, true)
	_, err := f.svc.DeleteByName(ctx, "  ")
	require.NoError(t, err)
	assert.True(t, f.mem.has(testPrefix), "blank remove key deletes nothing")
	assert.Contains(t, f.hooks.skipped, "no_key")
}

func TestSet_MethodErrorIsReturnedAndNotCached(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, failUser, "fail-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		u, err := f.svc.FailUser(ctx, 1)
		require.ErrorIs(t, err, errBackend)
		assert.Nil(t, u)
	}
	assert.Equal(t, int64(2), f.runs())
	assert.False(t, f.mem.has(testPrefix+"fail-1"))
}

// ==== conditions and TTL ====

func TestSet_ConditionSelectsWhatIsCached(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").When(func(u *User) bool { return u.Name == "User1" })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	a := mustUser(t)(f.svc.GetUser(ctx, 1))
	b := mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, a.RandomToken, b.RandomToken)
	assert.Equal(t, int64(1), f.runs())

	c := mustUser(t)(f.svc.GetUser(ctx, 2))
	d := mustUser(t)(f.svc.GetUser(ctx, 2))
	assert.NotEqual(t, c.RandomToken, d.RandomToken)
	assert.Equal(t, int64(3), f.runs())
	assert.Contains(t, f.hooks.skipped, "condition")
}

func TestRemove_ConditionGuardsInvalidation(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveFor[*User](s, deleteByName, "user-{_ret.ID}").When(func(u *User) bool { return u.ID == 1 })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 2))
	mustUser(t)(f.svc.DeleteByName(ctx, "User1"))
	mustUser(t)(f.svc.DeleteByName(ctx, "User2"))

	assert.False(t, f.mem.has(testPrefix+"user-1"))
	assert.True(t, f.mem.has(testPrefix+"user-2"))
}

func TestSet_TTLOffsetPerResult(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").
		TTL(time.Millisecond).
		TTLOffset(func(u *User) time.Duration { return time.Duration(u.TimeoutMs) * time.Millisecond })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	get := func(id int) { mustUser(t)(f.svc.GetUser(ctx, id)) }

	get(1)
	get(2)
	get(1)
	get(2)
	require.Equal(t, int64(2), f.runs())

	time.Sleep(1010 * time.Millisecond)
	get(1) // ~1001ms expired
	get(2) // ~2001ms still valid
	require.Equal(t, int64(3), f.runs())

	time.Sleep(1010 * time.Millisecond)
	get(2)
	get(1) // re-cached at ~1010ms for ~1001ms
	assert.Equal(t, int64(5), f.runs())
}

func TestSet_NonPositiveTTLSkipsWrite(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").
		TTLOffset(func(*User) time.Duration { return -2 * time.Minute })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(2), f.runs())
	assert.Contains(t, f.hooks.skipped, "ttl")
}

// ==== faults ====

func TestUserFunctionPanicsAreContained(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").
		When(func(*User) bool { panic("boom") })
	cache.RemoveFor[bool](s, updateUser, "user-{user.ID}").
		When(func(bool) bool { panic("boom") })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	u := mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs(), "a failing condition means not eligible")

	ok, err := f.svc.UpdateUser(ctx, u)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTTLOffsetPanicFallsBackToBaseTTL(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").
		TTLOffset(func(*User) time.Duration { panic("boom") })
	f := newFixture(t, s, nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(1), f.runs())
}

func TestTypeMismatchIsTreatedAsMiss(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	f.mem.put(testPrefix+"user-1", "not a user")

	u := mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, 1, u.ID)
	assert.Equal(t, int64(1), f.runs())
	assert.Equal(t, 1, f.hooks.mismatches)

	// overwritten with a proper value
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(1), f.runs())
}

func TestProviderErrorsDegradeToUncached(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	f.mem.failOn = errors.New("store offline")
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs())
}

func TestStaleWriteIsDroppedWhenKeyRemovedDuringCall(t *testing.T) {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	gens := genstore.NewLocalGenStore(time.Minute, time.Hour)
	t.Cleanup(func() { _ = gens.Close(context.Background()) })

	f := newFixture(t, s, func(o *cache.Options) { o.Generations = gens })
	ctx := context.Background()

	f.impl.onGet = func() { f.manager.Remove(ctx, "user-1") }
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.False(t, f.mem.has(testPrefix+"user-1"))
	assert.Contains(t, f.hooks.skipped, "stale_gen")

	f.impl.onGet = nil
	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs())
}

// ==== distributed ====

func TestDistributed_RoundTripsThroughCodec(t *testing.T) {
	s := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s, getUser, "user-{id}")
	cache.RemoveFor[bool](s, updateUser, "user-{user.ID}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	a := mustUser(t)(f.svc.GetUser(ctx, 1))
	b := mustUser(t)(f.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(1), f.runs())
	assert.Equal(t, a, b)
	assert.NotSame(t, a, b, "distributed hits are decoded copies")
	assert.True(t, f.dist.has(testPrefix+"user-1"))
	assert.False(t, f.mem.has(testPrefix+"user-1"))

	_, err := f.svc.UpdateUser(ctx, a)
	require.NoError(t, err)
	assert.False(t, f.dist.has(testPrefix+"user-1"))
}

func TestDistributed_CorruptPayloadSelfHeals(t *testing.T) {
	s := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	_, err := f.dist.Set(ctx, testPrefix+"user-1", []byte{0xc1, 0xff, 0x00}, 0, time.Minute)
	require.NoError(t, err)

	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(1), f.runs())
	assert.Equal(t, 1, f.hooks.selfHeals)

	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(1), f.runs())
}

// ==== interplay with other aspects ====

type countingAspect struct {
	before, after int
	lastRet       any
}

func (c *countingAspect) Before(_ *weave.Call, ret any, _ bool) (any, weave.Signal) {
	c.before++
	return ret, weave.Signal{}
}

func (c *countingAspect) After(_ *weave.Call, ret any, _ bool, _ error) any {
	c.after++
	c.lastRet = ret
	return ret
}

func TestOuterAspectSeesCachedValue(t *testing.T) {
	impl := &userService{}
	reg := weave.NewRegistry(weave.RegistryOptions{})
	chain := weave.For[UserService, *userService](reg, userMethods...)

	outer := &countingAspect{}
	require.NoError(t, chain.ConfigureAspect(outer))

	s := cache.NewSetup().KeyPrefix("")
	cache.SetFor[*User](s, getUser, "user-{id}")
	require.NoError(t, chain.Configure(cache.Factory(cache.Options{Memory: newMemStore()}, s)))

	svc := &userServiceProxy{d: weave.NewDispatcher(chain, impl), impl: impl}
	ctx := context.Background()

	a := mustUser(t)(svc.GetUser(ctx, 1))
	b := mustUser(t)(svc.GetUser(ctx, 1))

	assert.Same(t, a, b)
	assert.Equal(t, int64(1), impl.runs.Load())
	assert.Equal(t, 2, outer.before)
	assert.Equal(t, 2, outer.after)
	assert.Same(t, b, outer.lastRet)
}

// disablingAspect short-circuits every call with a fixed value.
type disablingAspect struct{ v any }

func (d disablingAspect) Before(_ *weave.Call, _ any, _ bool) (any, weave.Signal) {
	return d.v, weave.Signal{DisableMain: true}
}

func (d disablingAspect) After(_ *weave.Call, ret any, _ bool, _ error) any { return ret }

func TestCachePassesThroughWhenMainAlreadyDisabled(t *testing.T) {
	impl := &userService{}
	reg := weave.NewRegistry(weave.RegistryOptions{})
	chain := weave.For[UserService, *userService](reg, userMethods...)

	fixed := &User{ID: 42}
	require.NoError(t, chain.ConfigureAspect(disablingAspect{v: fixed}))
	mem := newMemStore()
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}")
	require.NoError(t, chain.Configure(cache.Factory(cache.Options{Memory: mem}, s)))

	svc := &userServiceProxy{d: weave.NewDispatcher(chain, impl), impl: impl}
	u := mustUser(t)(svc.GetUser(context.Background(), 1))

	assert.Same(t, fixed, u)
	assert.Equal(t, int64(0), impl.runs.Load())
	assert.Empty(t, mem.m)
}

func TestDistributed_ForeignCodecSelfHeals(t *testing.T) {
	s := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s, getUser, "user-{id}")
	ctx := context.Background()

	// a JSON writer and a msgpack reader sharing one backend
	shared := newMemProvider()
	writer := newFixture(t, s, func(o *cache.Options) { o.Distributed = shared; o.Codec = codec.JSON{} })
	mustUser(t)(writer.svc.GetUser(ctx, 1))
	require.True(t, shared.has(testPrefix+"user-1"))

	s2 := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s2, getUser, "user-{id}")
	reader := newFixture(t, s2, func(o *cache.Options) { o.Distributed = shared })
	mustUser(t)(reader.svc.GetUser(ctx, 1))

	assert.Equal(t, int64(1), reader.runs())
	assert.Equal(t, 1, reader.hooks.selfHeals)
}

func TestDistributed_BumpedGenerationInvalidatesEntry(t *testing.T) {
	s := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s, getUser, "user-{id}")
	gens := genstore.NewLocalGenStore(time.Minute, time.Hour)
	t.Cleanup(func() { _ = gens.Close(context.Background()) })

	f := newFixture(t, s, func(o *cache.Options) { o.Generations = gens })
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	mustUser(t)(f.svc.GetUser(ctx, 1))
	require.Equal(t, int64(1), f.runs())

	// another replica invalidated the key but its delete never reached the backend
	_, err := gens.Bump(ctx, testPrefix+"user-1")
	require.NoError(t, err)

	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs())
	assert.Equal(t, 1, f.hooks.selfHeals)

	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs())
}
