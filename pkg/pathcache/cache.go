// Package pathcache caches the target path tree and deployment settings of
// each external-system instance for the duration of a session.
//
// Trees are fetched lazily, retried with exponential backoff, and refetched
// after Invalidate. Fetches for different instances may run concurrently;
// concurrent Gets for the same instance share one fetch.
package pathcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// RetryConfig controls fetch retries.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts including the first (<=0 means 1)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any single delay
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if c.InitialDelay > 0 {
		b.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Stats counts cache activity.
type Stats struct {
	Hits          int64
	Misses        int64
	Fetches       int64 // Fetch attempts, including retries
	Invalidations int64
}

// Cache holds one tree and one settings record per instance.
type Cache struct {
	api   core.API
	retry RetryConfig

	mu       sync.RWMutex
	trees    map[string]*core.Tree
	settings map[string]*core.DeploymentSettings
	group    singleflight.Group

	hits, misses, fetches, invalidations atomic.Int64
}

// New creates an empty cache backed by api.
func New(api core.API, retry RetryConfig) *Cache {
	return &Cache{
		api:      api,
		retry:    retry,
		trees:    make(map[string]*core.Tree),
		settings: make(map[string]*core.DeploymentSettings),
	}
}

// Get returns the cached tree for an instance, fetching it if needed.
// A fetch that still fails after all retries returns core.ErrTreeFetch.
func (c *Cache) Get(ctx context.Context, instanceID string) (*core.Tree, error) {
	c.mu.RLock()
	tree, ok := c.trees[instanceID]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return tree, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do("tree/"+instanceID, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.trees[instanceID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		paths, err := backoff.RetryNotifyWithData(func() ([]core.TargetPath, error) {
			c.fetches.Add(1)
			return c.api.TargetPaths(ctx, instanceID)
		}, c.retry.backOff(ctx), notify("target paths", instanceID))
		if err != nil {
			return nil, core.ErrTreeFetch.WithCause(err).WithDetails(map[string]interface{}{
				"instance": instanceID,
			})
		}

		tree := core.NewTree(instanceID, paths)
		c.mu.Lock()
		c.trees[instanceID] = tree
		c.mu.Unlock()
		logger.Debug("cached %d target paths for %s", tree.Len(), instanceID)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Tree), nil
}

// Settings returns the deployment settings of an instance. Settings are
// read-only for this engine, so they are never invalidated.
func (c *Cache) Settings(ctx context.Context, instanceID string) (*core.DeploymentSettings, error) {
	c.mu.RLock()
	s, ok := c.settings[instanceID]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := c.group.Do("settings/"+instanceID, func() (interface{}, error) {
		s, err := backoff.RetryNotifyWithData(func() (*core.DeploymentSettings, error) {
			return c.api.DeploymentSettings(ctx, instanceID)
		}, c.retry.backOff(ctx), notify("deployment settings", instanceID))
		if err != nil {
			return nil, core.ErrSettingsFetch.WithCause(err).WithDetails(map[string]interface{}{
				"instance": instanceID,
			})
		}
		if s == nil {
			s = &core.DeploymentSettings{}
		}
		c.mu.Lock()
		c.settings[instanceID] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.DeploymentSettings), nil
}

// BaseSettings returns the cached settings of the given instances.
// Instances whose settings were never fetched are absent.
func (c *Cache) BaseSettings(instanceIDs ...string) core.BaseSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(core.BaseSettings, len(instanceIDs))
	for _, id := range instanceIDs {
		if s, ok := c.settings[id]; ok {
			out[id] = *s
		}
	}
	return out
}

// Invalidate drops the cached tree of an instance; the next Get refetches.
func (c *Cache) Invalidate(instanceID string) {
	c.mu.Lock()
	_, had := c.trees[instanceID]
	delete(c.trees, instanceID)
	c.mu.Unlock()

	c.group.Forget("tree/" + instanceID)
	if had {
		c.invalidations.Add(1)
		logger.Debug("invalidated target paths for %s", instanceID)
	}
}

// MaxConcurrentFetches bounds Prefetch parallelism.
const MaxConcurrentFetches = 4

// Prefetch loads settings and trees for every instance concurrently. A
// failing instance does not stop the others; failures are returned keyed by
// instance id, and the map is nil when everything loaded.
func (c *Cache) Prefetch(ctx context.Context, instanceIDs []string) map[string]error {
	var (
		mu     sync.Mutex
		failed map[string]error
	)

	var g errgroup.Group
	g.SetLimit(MaxConcurrentFetches)
	for _, id := range instanceIDs {
		id := id
		g.Go(func() error {
			_, err := c.Settings(ctx, id)
			if err == nil {
				_, err = c.Get(ctx, id)
			}
			if err != nil {
				mu.Lock()
				if failed == nil {
					failed = make(map[string]error)
				}
				failed[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Fetches:       c.fetches.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func notify(what, instanceID string) backoff.Notify {
	return func(err error, next time.Duration) {
		logger.Warn("fetching %s for %s failed, retrying in %s: %v", what, instanceID, next, err)
	}
}

// String is used in log lines.
func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d fetches=%d invalidations=%d", s.Hits, s.Misses, s.Fetches, s.Invalidations)
}
