package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/flowdeploy/pkg/conflict"
	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/driver/mock"
	"github.com/devicelab-dev/flowdeploy/pkg/report"
)

func newDriver() *mock.Driver {
	d := mock.New(mock.Config{})
	d.AddInstance("nifi-1", "Root")
	d.AddPath("nifi-1", "base", "To net1")
	d.AddPath("nifi-1", "existing", "To net1", "taken")
	return d
}

func cfg(flowID, name string) core.DeploymentConfig {
	return core.DeploymentConfig{
		FlowID:               flowID,
		Target:               core.DirectionSource,
		HierarchyValue:       "corp",
		InstanceID:           "nifi-1",
		AvailableTargetPaths: []core.TargetPath{core.NewTargetPath("base", "Root", "To net1")},
		SelectedTargetPathID: "base",
		GeneratedName:        name,
	}
}

func deployCalls(d *mock.Driver) []string {
	var ids []string
	for _, c := range d.Calls() {
		if c.Method == "Deploy" {
			ids = append(ids, c.FlowID)
		}
	}
	return ids
}

func countMethod(d *mock.Driver, method string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

type recordingCache struct{ invalidated []string }

func (c *recordingCache) Invalidate(id string) { c.invalidated = append(c.invalidated, id) }

func TestDeployBatch_AllSucceed(t *testing.T) {
	d := newDriver()
	runner := New(d, RunnerConfig{})

	batch, err := runner.DeployBatch(context.Background(), []core.DeploymentConfig{
		cfg("f1", "a"), cfg("f2", "b"), cfg("f3", "c"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, batch.RunID)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 3, batch.SuccessCount)
	assert.True(t, batch.Success())
	require.Len(t, batch.Results, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, batch.Results[i].TargetName)
		assert.NotEmpty(t, batch.Results[i].TargetID)
		assert.False(t, batch.Results[i].StartTime.IsZero())
	}
	assert.Equal(t, []string{"f1", "f2", "f3"}, deployCalls(d))
}

func TestDeployBatch_FailureDoesNotAbort(t *testing.T) {
	for k := 1; k <= 4; k++ {
		d := newDriver()
		configs := []core.DeploymentConfig{cfg("f1", "a"), cfg("f2", "b"), cfg("f3", "c"), cfg("f4", "d")}
		d.Config.FailDeploy = map[string]string{configs[k-1].FlowID: "HTTP 500"}

		batch, err := New(d, RunnerConfig{}).DeployBatch(context.Background(), configs)
		require.NoError(t, err)

		assert.Equal(t, 4, batch.Total, "k=%d", k)
		assert.Equal(t, 1, batch.FailCount, "k=%d", k)
		assert.Equal(t, 3, batch.SuccessCount, "k=%d", k)
		assert.Len(t, deployCalls(d), 4, "items after k still run")

		failed := batch.Results[k-1]
		assert.False(t, failed.Success)
		assert.Contains(t, failed.ErrorMessage, "HTTP 500")
		assert.Equal(t, core.KindItemDeployment, failed.ErrorKind)
		assert.Equal(t, configs[k-1].FlowID, failed.Config.FlowID)
	}
}

func TestDeployBatch_Sequential(t *testing.T) {
	d := newDriver()
	d.Config.CallDelay = 5 * time.Millisecond

	_, err := New(d, RunnerConfig{}).DeployBatch(context.Background(), []core.DeploymentConfig{
		cfg("f1", "a"), cfg("f2", "b"), cfg("f3", "c"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, d.MaxInFlight())
}

func TestDeployBatch_ConflictResolved(t *testing.T) {
	d := newDriver()
	cache := &recordingCache{}
	var conflicts []string

	runner := New(d, RunnerConfig{
		Prompter: conflict.Policy{Action: conflict.DeployAnyway{}},
		Cache:    cache,
		OnConflict: func(c core.DeploymentConfig, info core.ConflictInfo) {
			conflicts = append(conflicts, c.FlowID+":"+info.Existing.ID)
		},
	})

	batch, err := runner.DeployBatch(context.Background(), []core.DeploymentConfig{cfg("f1", "taken")})
	require.NoError(t, err)

	r := batch.Results[0]
	assert.True(t, r.Success)
	assert.Equal(t, "taken (2)", r.TargetName)
	assert.Equal(t, "deploy_anyway", r.Resolution)
	assert.Equal(t, []string{"f1:existing"}, conflicts)
	assert.Equal(t, []string{"nifi-1"}, cache.invalidated)
}

func TestDeployBatch_ConflictCancelled(t *testing.T) {
	d := newDriver()

	batch, err := New(d, RunnerConfig{}).DeployBatch(context.Background(), []core.DeploymentConfig{
		cfg("f1", "taken"), cfg("f2", "fresh"),
	})
	require.NoError(t, err)

	cancelled := batch.Results[0]
	assert.False(t, cancelled.Success)
	assert.Equal(t, core.KindCancellation, cancelled.ErrorKind)
	assert.Contains(t, cancelled.ErrorMessage, "cancelled by user")
	assert.True(t, batch.Results[1].Success)
	assert.Zero(t, countMethod(d, "ResolveConflict"), "cancelled conflicts are not retried")
	assert.Equal(t, []string{"f1", "f2"}, deployCalls(d))
}

func TestDeployBatch_UnavailableActionRejected(t *testing.T) {
	d := newDriver()

	batch, err := New(d, RunnerConfig{
		Prompter: conflict.Policy{Action: conflict.UpdateVersion{}},
	}).DeployBatch(context.Background(), []core.DeploymentConfig{cfg("f1", "taken")})
	require.NoError(t, err)

	assert.False(t, batch.Results[0].Success)
	assert.Contains(t, batch.Results[0].ErrorMessage, "update_version")
	assert.Zero(t, countMethod(d, "ResolveConflict"))
}

func TestDeployBatch_UpdateVersionKeepsCache(t *testing.T) {
	d := newDriver()
	d.SetVersioned("nifi-1", "existing", 1, 0)
	cache := &recordingCache{}

	batch, err := New(d, RunnerConfig{
		Prompter: conflict.Policy{Action: conflict.UpdateVersion{}},
		Cache:    cache,
	}).DeployBatch(context.Background(), []core.DeploymentConfig{cfg("f1", "taken")})
	require.NoError(t, err)

	assert.True(t, batch.Results[0].Success)
	assert.Equal(t, "existing", batch.Results[0].TargetID)
	assert.Empty(t, cache.invalidated, "in-place update leaves the tree unchanged")
}

func TestDeployBatch_CancelBetweenItems(t *testing.T) {
	d := newDriver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var completed []int
	runner := New(d, RunnerConfig{
		OnItemComplete: func(idx int, _ core.DeploymentResult, _ *core.BatchResult) {
			completed = append(completed, idx)
			if idx == 0 {
				cancel()
			}
		},
	})

	batch, err := runner.DeployBatch(ctx, []core.DeploymentConfig{cfg("f1", "a"), cfg("f2", "b"), cfg("f3", "c")})
	require.NoError(t, err)

	assert.True(t, batch.Cancelled)
	assert.Equal(t, 3, batch.Total)
	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Success, "already-recorded results are preserved")
	for _, r := range batch.Results[1:] {
		assert.False(t, r.Success)
		assert.Contains(t, r.ErrorMessage, "batch cancelled")
		assert.Equal(t, core.KindCancellation, r.ErrorKind)
	}
	assert.Equal(t, []string{"f1"}, deployCalls(d))
	assert.Equal(t, []int{0, 1, 2}, completed)
}

func TestDeployBatch_InFlightCallNotInterrupted(t *testing.T) {
	d := newDriver()
	d.Config.CallDelay = 30 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := New(d, RunnerConfig{
		OnItemStart: func(idx, _ int, _ core.DeploymentConfig) {
			if idx == 0 {
				go func() {
					time.Sleep(5 * time.Millisecond)
					cancel()
				}()
			}
		},
	})

	batch, err := runner.DeployBatch(ctx, []core.DeploymentConfig{cfg("f1", "a"), cfg("f2", "b")})
	require.NoError(t, err)

	assert.True(t, batch.Results[0].Success, "call in flight completes")
	assert.False(t, batch.Results[1].Success)
	assert.Equal(t, core.KindCancellation, batch.Results[1].ErrorKind)
}

func TestDeployBatch_RefreshAfterTreeChange(t *testing.T) {
	d := newDriver()
	var refreshed []string

	runner := New(d, RunnerConfig{
		Cache: &recordingCache{},
		Refresh: func(_ context.Context, c core.DeploymentConfig) (core.DeploymentConfig, error) {
			refreshed = append(refreshed, c.FlowID)
			if c.FlowID == "f3" {
				return c, core.ErrStaleTarget
			}
			return c, nil
		},
	})

	d.AddInstance("nifi-2", "Root")
	other := cfg("f2", "b")
	other.InstanceID = "nifi-2"
	other.SelectedTargetPathID = ""

	batch, err := runner.DeployBatch(context.Background(), []core.DeploymentConfig{
		cfg("f1", "a"), other, cfg("f3", "c"), cfg("f4", "d"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"f3", "f4"}, refreshed, "only later items of the changed instance refresh")
	assert.False(t, batch.Results[2].Success)
	assert.Contains(t, batch.Results[2].ErrorMessage, "no longer exists")
	assert.True(t, batch.Results[3].Success)
	assert.Equal(t, 3, batch.SuccessCount)
}

func TestDeployBatch_WritesReport(t *testing.T) {
	d := newDriver()
	d.Config.FailDeploy = map[string]string{"f2": "boom"}
	dir := t.TempDir()

	batch, err := New(d, RunnerConfig{OutputDir: dir, Server: "http://nifi"}).DeployBatch(
		context.Background(), []core.DeploymentConfig{cfg("f1", "a"), cfg("f2", "b")})
	require.NoError(t, err)

	index, err := report.ReadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, batch.RunID, index.RunID)
	assert.Equal(t, report.StatusFailed, index.Status)
	assert.Equal(t, report.StatusSucceeded, index.Items[0].Status)
	assert.Equal(t, report.StatusFailed, index.Items[1].Status)
	assert.Contains(t, index.Items[1].Error, "boom")
	assert.Equal(t, 1, index.Summary.Succeeded)
}

func TestDeployBatch_Empty(t *testing.T) {
	batch, err := New(newDriver(), RunnerConfig{}).DeployBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Total)
	assert.True(t, batch.Success())
}

func TestDeployBatch_PanicDoesNotAbort(t *testing.T) {
	d := newDriver()

	runner := New(d, RunnerConfig{
		Prompter: conflict.PrompterFunc(func(context.Context, conflict.Prompt) (conflict.Action, error) {
			panic("prompter bug")
		}),
		Refresh: func(_ context.Context, c core.DeploymentConfig) (core.DeploymentConfig, error) {
			if c.FlowID == "f3" {
				panic("refresh bug")
			}
			return c, nil
		},
		Cache: &recordingCache{},
	})

	batch, err := runner.DeployBatch(context.Background(), []core.DeploymentConfig{
		cfg("f1", "taken"), cfg("f2", "fresh"), cfg("f3", "other"), cfg("f4", "last"),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, batch.Total)
	require.Len(t, batch.Results, 4)
	assert.False(t, batch.Results[0].Success)
	assert.Contains(t, batch.Results[0].ErrorMessage, "panic: prompter bug")
	assert.Equal(t, core.KindItemDeployment, batch.Results[0].ErrorKind)
	assert.True(t, batch.Results[1].Success)
	assert.False(t, batch.Results[2].Success)
	assert.Contains(t, batch.Results[2].ErrorMessage, "panic: refresh bug")
	assert.True(t, batch.Results[3].Success)
	assert.Equal(t, 2, batch.FailCount)
}

func TestDeployBatch_CancelDuringConflictPrompt(t *testing.T) {
	d := newDriver()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := New(d, RunnerConfig{
		Prompter: conflict.PrompterFunc(func(pctx context.Context, _ conflict.Prompt) (conflict.Action, error) {
			cancel()
			select {
			case <-pctx.Done():
				return nil, core.ErrUserCancelled.WithCause(pctx.Err())
			case <-time.After(time.Second):
				return conflict.DeployAnyway{}, nil
			}
		}),
	})

	batch, err := runner.DeployBatch(ctx, []core.DeploymentConfig{cfg("f1", "taken"), cfg("f2", "fresh")})
	require.NoError(t, err)

	assert.Equal(t, core.KindCancellation, batch.Results[0].ErrorKind)
	assert.Contains(t, batch.Results[0].ErrorMessage, "cancelled by user")
	assert.Zero(t, countMethod(d, "ResolveConflict"))
	assert.True(t, batch.Cancelled)
	assert.Contains(t, batch.Results[1].ErrorMessage, "batch cancelled")
	assert.Equal(t, []string{"f1"}, deployCalls(d))
}
