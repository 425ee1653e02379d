package pathcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/driver/mock"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newDriver(instances ...string) *mock.Driver {
	d := mock.New(mock.Config{})
	for _, id := range instances {
		d.AddInstance(id, "Root")
		d.AddPath(id, id+"-base", "To net1")
		d.SetBasePath(id, core.DirectionSource, id+"-base")
	}
	return d
}

func countCalls(d *mock.Driver, method, instanceID string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method && c.InstanceID == instanceID {
			n++
		}
	}
	return n
}

func TestCache_GetCachesTree(t *testing.T) {
	d := newDriver("nifi-1")
	c := New(d, fastRetry(1))
	ctx := context.Background()

	tree, err := c.Get(ctx, "nifi-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())
	assert.True(t, tree.Contains("nifi-1-base"))

	again, err := c.Get(ctx, "nifi-1")
	require.NoError(t, err)
	assert.Same(t, tree, again)
	assert.Equal(t, 1, countCalls(d, "TargetPaths", "nifi-1"))

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestCache_RetriesTransientFailures(t *testing.T) {
	d := newDriver("nifi-1")
	d.Config.FailFetch = 2
	c := New(d, fastRetry(3))

	tree, err := c.Get(context.Background(), "nifi-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, int64(3), c.Stats().Fetches)
}

func TestCache_GivesUpAfterMaxAttempts(t *testing.T) {
	d := newDriver("nifi-1")
	d.Config.FailFetch = 5
	c := New(d, fastRetry(2))

	_, err := c.Get(context.Background(), "nifi-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTreeFetch)
	assert.Equal(t, core.KindPrecondition, core.KindOf(err))
	assert.Equal(t, 2, countCalls(d, "TargetPaths", "nifi-1"))
}

func TestCache_Invalidate(t *testing.T) {
	d := newDriver("nifi-1")
	c := New(d, fastRetry(1))
	ctx := context.Background()

	_, err := c.Get(ctx, "nifi-1")
	require.NoError(t, err)

	d.AddPath("nifi-1", "new", "To net1", "team-a")
	c.Invalidate("nifi-1")

	tree, err := c.Get(ctx, "nifi-1")
	require.NoError(t, err)
	assert.True(t, tree.Contains("new"))
	assert.Equal(t, int64(1), c.Stats().Invalidations)

	c.Invalidate("unknown")
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestCache_Settings(t *testing.T) {
	d := newDriver("nifi-1")
	c := New(d, fastRetry(1))

	s, err := c.Settings(context.Background(), "nifi-1")
	require.NoError(t, err)
	require.NotNil(t, s.SourcePath)
	assert.Equal(t, "nifi-1-base", s.SourcePath.ID)

	base := c.BaseSettings("nifi-1", "nifi-2")
	assert.Len(t, base, 1)
	bp, ok := base.Lookup("nifi-1", core.DirectionSource)
	require.True(t, ok)
	assert.Equal(t, "/To net1", bp.Path)
}

func TestCache_SettingsUnknownInstance(t *testing.T) {
	c := New(newDriver(), fastRetry(1))
	_, err := c.Settings(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrSettingsFetch)
}

func TestCache_Prefetch(t *testing.T) {
	d := newDriver("a", "b", "c")
	d.Config.CallDelay = 20 * time.Millisecond
	c := New(d, fastRetry(1))

	assert.Nil(t, c.Prefetch(context.Background(), []string{"a", "b", "c"}))
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, countCalls(d, "TargetPaths", id))
		assert.Equal(t, 1, countCalls(d, "DeploymentSettings", id))
	}
	assert.Greater(t, d.MaxInFlight(), 1, "independent instances are fetched concurrently")
}

func TestCache_PrefetchFailure(t *testing.T) {
	d := newDriver("a")
	c := New(d, fastRetry(1))

	failed := c.Prefetch(context.Background(), []string{"a", "missing"})
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed["missing"], core.ErrSettingsFetch)

	tree, err := c.Get(context.Background(), "a")
	require.NoError(t, err, "healthy instance still loads")
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, 1, countCalls(d, "TargetPaths", "a"))
}

func TestCache_ConcurrentGetSharesFetch(t *testing.T) {
	d := newDriver("nifi-1")
	d.Config.CallDelay = 20 * time.Millisecond
	c := New(d, fastRetry(1))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "nifi-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, countCalls(d, "TargetPaths", "nifi-1"))
}
