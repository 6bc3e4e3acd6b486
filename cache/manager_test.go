package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/cache"
)

func managerSetup() *cache.Setup {
	s := cache.NewSetup()
	cache.SetFor[*User](s, getUser, "user-{id}").When(func(u *User) bool { return u.ID > 0 })
	cache.SetFor[*Feed](s, getFeed, "feed-{id}").TTL(cache.Day)
	cache.RemoveFor[bool](s, updateUser, "user-{user.ID}").Provider(cache.Distributed)
	return s
}

func TestManager_GetAfterCall(t *testing.T) {
	f := newFixture(t, managerSetup(), nil)
	ctx := context.Background()

	_, ok := f.manager.Get(ctx, "user-1")
	assert.False(t, ok)

	u := mustUser(t)(f.svc.GetUser(ctx, 1))

	v, ok := f.manager.Get(ctx, "user-1")
	require.True(t, ok)
	assert.Same(t, u, v)

	got, ok := cache.GetAs[*User](ctx, f.manager, "user-1")
	require.True(t, ok)
	assert.Same(t, u, got)

	_, ok = cache.GetAs[User](ctx, f.manager, "user-1")
	assert.False(t, ok, "GetAs wants the exact stored type")

	assert.Equal(t, testPrefix+"user-1", f.manager.FullKey("user-1"))
}

func TestManager_RemoveForcesNextCallToRun(t *testing.T) {
	f := newFixture(t, managerSetup(), nil)
	ctx := context.Background()

	mustUser(t)(f.svc.GetUser(ctx, 1))
	f.manager.Remove(ctx, "user-1")
	f.manager.Remove(ctx, "never-cached")

	_, ok := f.manager.Get(ctx, "user-1")
	assert.False(t, ok)

	mustUser(t)(f.svc.GetUser(ctx, 1))
	assert.Equal(t, int64(2), f.runs())
}

func TestManager_Distributed(t *testing.T) {
	s := cache.NewSetup().DefaultProvider(cache.Distributed)
	cache.SetFor[*User](s, getUser, "user-{id}")
	f := newFixture(t, s, nil)
	ctx := context.Background()

	u := mustUser(t)(f.svc.GetUser(ctx, 2))

	raw, ok := f.manager.Get(ctx, "user-2")
	require.True(t, ok)
	assert.IsType(t, []byte(nil), raw)

	_, ok = f.manager.GetFrom(ctx, "user-2", cache.Memory)
	assert.False(t, ok)

	got, ok := cache.GetAsFrom[*User](ctx, f.manager, "user-2", cache.Distributed)
	require.True(t, ok)
	assert.Equal(t, u, got)

	f.manager.RemoveFrom(ctx, "user-2", cache.Distributed)
	assert.False(t, f.dist.has(testPrefix+"user-2"))
}

func TestManager_Plans(t *testing.T) {
	f := newFixture(t, managerSetup(), nil)

	plans := f.manager.Plans()
	require.Len(t, plans, 3)

	byName := map[string]cache.PlanInfo{}
	for _, p := range plans {
		byName[p.Method] = p
	}
	assert.Equal(t, []string{"GetFeed", "GetUser", "UpdateUser"}, []string{plans[0].Method, plans[1].Method, plans[2].Method})

	gu := byName["GetUser"]
	assert.Equal(t, cache.Set, gu.Action)
	assert.Equal(t, cache.Memory, gu.Provider)
	assert.Equal(t, time.Minute, gu.TTL)
	assert.Equal(t, "user-{id}", gu.KeyTemplate)
	assert.Equal(t, testPrefix, gu.KeyPrefix)
	assert.True(t, gu.HasCondition)
	assert.False(t, gu.HasTTLOffset)
	assert.True(t, gu.HasKeyFunc)
	assert.Contains(t, gu.Signature, "GetUser(")

	assert.Equal(t, cache.Day, byName["GetFeed"].TTL)

	uu := byName["UpdateUser"]
	assert.Equal(t, cache.Remove, uu.Action)
	assert.Equal(t, cache.Distributed, uu.Provider)
	assert.Zero(t, uu.TTL)
}

func TestManagerFor_Errors(t *testing.T) {
	reg := weave.NewRegistry(weave.RegistryOptions{})
	_, err := cache.ManagerFor[UserService, *userService](reg)
	assert.Error(t, err)

	weave.For[UserService, *userService](reg, userMethods...)
	_, err = cache.ManagerFor[UserService, *userService](reg)
	assert.ErrorContains(t, err, "not configured")
}
