package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	labels map[string]string
	err    error
	delay  time.Duration
	gate   chan struct{}
	calls  atomic.Int32
}

func (f *fakeLookup) LookupRole(ctx context.Context, principalID string) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	label, ok := f.labels[principalID]
	if !ok {
		return "", ErrNoProfile
	}
	return label, nil
}

func TestResolverNormalizesLabel(t *testing.T) {
	r := NewResolver(ResolverConfig{Lookup: &fakeLookup{labels: map[string]string{"p-1": " Deposito "}}})
	assert.Equal(t, RoleDeposito, r.Resolve(context.Background(), "p-1"))
}

func TestResolverFailsClosed(t *testing.T) {
	ctx := context.Background()

	missing := NewResolver(ResolverConfig{Lookup: &fakeLookup{labels: map[string]string{}}})
	assert.Equal(t, NoRole, missing.Resolve(ctx, "p-1"))

	broken := NewResolver(ResolverConfig{Lookup: &fakeLookup{err: errors.New("connection refused")}})
	assert.Equal(t, NoRole, broken.Resolve(ctx, "p-1"))

	blankLabel := NewResolver(ResolverConfig{Lookup: &fakeLookup{labels: map[string]string{"p-1": "  "}}})
	assert.Equal(t, NoRole, blankLabel.Resolve(ctx, "p-1"))

	assert.Equal(t, NoRole, missing.Resolve(ctx, "  "))
	assert.Equal(t, NoRole, NewResolver(ResolverConfig{}).Resolve(ctx, "p-1"))
}

func TestResolverTimeout(t *testing.T) {
	lookup := &fakeLookup{labels: map[string]string{"p-1": "admin"}, delay: time.Second}
	r := NewResolver(ResolverConfig{Lookup: lookup, Timeout: 20 * time.Millisecond})

	start := time.Now()
	assert.Equal(t, NoRole, r.Resolve(context.Background(), "p-1"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestResolverHonoursCallerCancellation(t *testing.T) {
	lookup := &fakeLookup{labels: map[string]string{"p-1": "admin"}, delay: time.Second}
	r := NewResolver(ResolverConfig{Lookup: lookup, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, NoRole, r.Resolve(ctx, "p-1"))
}

func TestResolverCollapsesConcurrentLookups(t *testing.T) {
	lookup := &fakeLookup{labels: map[string]string{"p-1": "cumplimiento"}, gate: make(chan struct{})}
	r := NewResolver(ResolverConfig{Lookup: lookup})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Role, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "p-1")
		}(i)
	}

	require.Eventually(t, func() bool { return lookup.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(lookup.gate)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, RoleCumplimiento, got)
	}
	assert.Less(t, lookup.calls.Load(), int32(callers))
}

func TestResolverCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lookup := &fakeLookup{labels: map[string]string{"p-1": "admin"}}
	r := NewResolver(ResolverConfig{Lookup: lookup, Cache: client, CacheTTL: time.Minute})
	ctx := context.Background()

	assert.Equal(t, RoleAdmin, r.Resolve(ctx, "p-1"))
	assert.Equal(t, RoleAdmin, r.Resolve(ctx, "p-1"))
	assert.EqualValues(t, 1, lookup.calls.Load())

	cached, err := mr.Get("rbac:role:p-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", cached)

	lookup.labels["p-1"] = "tecnico"
	r.Forget(ctx, "p-1")
	assert.False(t, mr.Exists("rbac:role:p-1"))
	assert.Equal(t, RoleTecnico, r.Resolve(ctx, "p-1"))
	assert.EqualValues(t, 2, lookup.calls.Load())
}

func TestResolverForgetDuringLookupKeepsStaleRoleOutOfCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lookup := &fakeLookup{labels: map[string]string{"p-1": "superadmin"}, gate: make(chan struct{})}
	r := NewResolver(ResolverConfig{Lookup: lookup, Cache: client, CacheTTL: time.Minute})
	ctx := context.Background()

	done := make(chan Role)
	go func() { done <- r.Resolve(ctx, "p-1") }()
	require.Eventually(t, func() bool { return lookup.calls.Load() >= 1 }, time.Second, time.Millisecond)

	// The role changes while the lookup above is still running.
	r.Forget(ctx, "p-1")
	close(lookup.gate)
	assert.Equal(t, RoleSuperAdmin, <-done)
	assert.False(t, mr.Exists("rbac:role:p-1"))

	lookup.labels["p-1"] = "tecnico"
	assert.Equal(t, RoleTecnico, r.Resolve(ctx, "p-1"))
	cached, err := mr.Get("rbac:role:p-1")
	require.NoError(t, err)
	assert.Equal(t, "tecnico", cached)
}

func TestResolverDoesNotCacheNoRole(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewResolver(ResolverConfig{Lookup: &fakeLookup{labels: map[string]string{}}, Cache: client, CacheTTL: time.Minute})

	assert.Equal(t, NoRole, r.Resolve(context.Background(), "p-1"))
	assert.False(t, mr.Exists("rbac:role:p-1"))
}

func TestResolverSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()
	r := NewResolver(ResolverConfig{Lookup: &fakeLookup{labels: map[string]string{"p-1": "deposito"}}, Cache: client, CacheTTL: time.Minute})

	assert.Equal(t, RoleDeposito, r.Resolve(context.Background(), "p-1"))
}
