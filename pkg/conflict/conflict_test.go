package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/driver/mock"
)

func setup(versioned bool) (*mock.Driver, core.DeployRequest, core.ConflictInfo) {
	d := mock.New(mock.Config{})
	d.AddInstance("nifi-1", "Root")
	d.AddPath("nifi-1", "base", "To net1")
	d.AddPath("nifi-1", "existing", "To net1", "team-a")
	if versioned {
		d.SetVersioned("nifi-1", "existing", 2, 0)
	}

	parent := "base"
	req := core.DeployRequest{FlowID: "f1", TargetParentID: &parent, NewName: "team-a"}
	resp, _ := d.Deploy(context.Background(), "nifi-1", req)
	return d, req, *resp.Conflict
}

func countCalls(d *mock.Driver, method string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"deploy_anyway", "delete_and_deploy", "update_version"} {
		a, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
	}
	_, err := ParseAction("rename")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	plain := Options(core.ConflictInfo{})
	assert.Equal(t, []Action{DeployAnyway{}, DeleteAndDeploy{}}, plain)

	versioned := Options(core.ConflictInfo{Existing: core.ExistingTarget{HasVersionControl: true}})
	assert.Equal(t, []Action{DeployAnyway{}, DeleteAndDeploy{}, UpdateVersion{}}, versioned)
}

func TestDescribe(t *testing.T) {
	info := core.ConflictInfo{Existing: core.ExistingTarget{Name: "team-a", RunningCount: 4, StoppedCount: 1}}
	assert.Contains(t, Describe(DeleteAndDeploy{}, info), "4 running, 1 stopped")
	assert.True(t, DeleteAndDeploy{}.Destructive())
	assert.False(t, DeployAnyway{}.Destructive())
}

func TestResolver_Lifecycle(t *testing.T) {
	d, req, info := setup(false)
	r := NewResolver(d, "nifi-1", req)
	assert.Equal(t, StateIdle, r.State())

	require.NoError(t, r.Present(info))
	assert.Equal(t, StatePresenting, r.State())
	assert.ErrorIs(t, r.Present(info), ErrInvalidTransition)

	resp, err := r.Resolve(context.Background(), DeployAnyway{})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, r.State())
	assert.True(t, r.State().IsTerminal())
	assert.Equal(t, "team-a (2)", resp.TargetName)
	assert.Equal(t, DeployAnyway{}, r.Action())

	_, err = r.Resolve(context.Background(), DeployAnyway{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolver_UpdateVersionGuard(t *testing.T) {
	d, req, info := setup(false)
	r := NewResolver(d, "nifi-1", req)
	require.NoError(t, r.Present(info))

	_, err := r.Resolve(context.Background(), UpdateVersion{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrActionUnavailable))
	assert.Equal(t, StatePresenting, r.State(), "guard leaves the conflict open")
	assert.Zero(t, countCalls(d, "ResolveConflict"), "no API call for an unavailable action")

	_, err = r.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrActionUnavailable)
}

func TestResolver_UpdateVersionAllowed(t *testing.T) {
	d, req, info := setup(true)
	r := NewResolver(d, "nifi-1", req)
	require.NoError(t, r.Present(info))

	resp, err := r.Resolve(context.Background(), UpdateVersion{})
	require.NoError(t, err)
	assert.Equal(t, "existing", resp.TargetID)
}

func TestResolver_Cancel(t *testing.T) {
	d, req, info := setup(false)
	r := NewResolver(d, "nifi-1", req)

	assert.ErrorIs(t, r.Cancel(), ErrInvalidTransition)
	require.NoError(t, r.Present(info))
	require.NoError(t, r.Cancel())
	assert.Equal(t, StateCancelled, r.State())
	assert.Zero(t, countCalls(d, "ResolveConflict"))
}

func TestResolver_ResolveFailure(t *testing.T) {
	d, req, info := setup(false)
	d.Config.FailResolve = map[string]string{"f1": "permission denied"}
	r := NewResolver(d, "nifi-1", req)
	require.NoError(t, r.Present(info))

	_, err := r.Resolve(context.Background(), DeleteAndDeploy{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResolveFailed)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, StateFailed, r.State())
}

func TestHandle_Policy(t *testing.T) {
	d, req, info := setup(false)

	out, err := Handle(context.Background(), d, "nifi-1", core.DeploymentConfig{FlowID: "f1"}, req, info, Policy{Action: DeleteAndDeploy{}})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, out.State)
	assert.Equal(t, "delete_and_deploy", out.Action.Name())
	assert.True(t, out.Response.Success)
}

func TestHandle_Cancel(t *testing.T) {
	d, req, info := setup(false)

	out, err := Handle(context.Background(), d, "nifi-1", core.DeploymentConfig{FlowID: "f1"}, req, info, Policy{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUserCancelled)
	assert.Equal(t, core.KindCancellation, core.KindOf(err))
	assert.Equal(t, StateCancelled, out.State)
	assert.Contains(t, err.Error(), "team-a already exists")
}

func TestHandle_PrompterSeesOptions(t *testing.T) {
	d, req, info := setup(true)
	var seen []Action

	prompter := PrompterFunc(func(_ context.Context, p Prompt) (Action, error) {
		seen = p.Options
		assert.Equal(t, "f1", p.Config.FlowID)
		return UpdateVersion{}, nil
	})

	_, err := Handle(context.Background(), d, "nifi-1", core.DeploymentConfig{FlowID: "f1"}, req, info, prompter)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestHandle_PrompterError(t *testing.T) {
	d, req, info := setup(false)
	boom := errors.New("terminal closed")

	_, err := Handle(context.Background(), d, "nifi-1", core.DeploymentConfig{}, req, info, PrompterFunc(func(context.Context, Prompt) (Action, error) {
		return nil, boom
	}))
	assert.ErrorIs(t, err, boom)
}

func TestHandle_ResolveIgnoresLateCancel(t *testing.T) {
	d, req, info := setup(false)
	d.Config.CallDelay = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := Handle(ctx, d, "nifi-1", core.DeploymentConfig{FlowID: "f1"}, req, info, PrompterFunc(func(context.Context, Prompt) (Action, error) {
		cancel()
		return DeployAnyway{}, nil
	}))
	require.NoError(t, err, "a chosen action is applied even if ctx ends meanwhile")
	assert.Equal(t, StateResolved, out.State)
	assert.Equal(t, 1, countCalls(d, "ResolveConflict"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("cancel")
	require.NoError(t, err)
	assert.Nil(t, p.Action)

	p, err = ParsePolicy("deploy_anyway")
	require.NoError(t, err)
	assert.Equal(t, DeployAnyway{}, p.Action)

	_, err = ParsePolicy("prompt")
	assert.Error(t, err)
}
