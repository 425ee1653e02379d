package conflict

import (
	"context"
	"errors"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Prompt is what a Prompter is asked to decide on.
type Prompt struct {
	Config   core.DeploymentConfig
	Conflict core.ConflictInfo
	Options  []Action
}

// Prompter chooses a resolution action. Returning an error that matches
// core.ErrUserCancelled cancels the conflict; other errors fail the item.
type Prompter interface {
	Choose(ctx context.Context, p Prompt) (Action, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p Prompt) (Action, error)

// Choose calls f.
func (f PrompterFunc) Choose(ctx context.Context, p Prompt) (Action, error) {
	return f(ctx, p)
}

// Policy answers every conflict with the same action. A nil Action cancels.
type Policy struct {
	Action Action
}

// Choose returns the policy action.
func (p Policy) Choose(_ context.Context, _ Prompt) (Action, error) {
	if p.Action == nil {
		return nil, core.ErrUserCancelled
	}
	return p.Action, nil
}

// ParsePolicy converts a config value (cancel or an action name) to a Policy.
func ParsePolicy(name string) (Policy, error) {
	if name == "" || name == "cancel" {
		return Policy{}, nil
	}
	a, err := ParseAction(name)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Action: a}, nil
}

// Outcome is the result of handling one conflict.
type Outcome struct {
	State    State
	Action   Action
	Response *core.ResolveResponse
}

// Handle presents info, asks prompter for a choice and applies it. A
// cancellation is returned as core.ErrUserCancelled with State Cancelled.
//
// The prompter sees ctx, so cancelling it ends a pending prompt. Once an
// action is chosen the resolve call runs to completion regardless of ctx.
func Handle(ctx context.Context, api core.API, instanceID string, cfg core.DeploymentConfig, req core.DeployRequest, info core.ConflictInfo, prompter Prompter) (Outcome, error) {
	r := NewResolver(api, instanceID, req)
	if err := r.Present(info); err != nil {
		return Outcome{State: r.State()}, err
	}

	action, err := prompter.Choose(ctx, Prompt{
		Config:   cfg,
		Conflict: info,
		Options:  r.Options(),
	})
	if err != nil {
		if errors.Is(err, core.ErrUserCancelled) {
			_ = r.Cancel()
			return Outcome{State: r.State()}, core.ErrUserCancelled.WithMessage(
				"deployment cancelled by user: " + info.Existing.Name + " already exists")
		}
		return Outcome{State: r.State()}, err
	}

	resp, err := r.Resolve(context.WithoutCancel(ctx), action)
	return Outcome{State: r.State(), Action: r.Action(), Response: resp}, err
}
