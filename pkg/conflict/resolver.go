package conflict

import (
	"context"
	"errors"
	"fmt"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// State is the lifecycle position of one conflict.
type State int

const (
	StateIdle       State = iota // No conflict yet
	StatePresenting              // Conflict shown, waiting for a choice
	StateResolving               // Resolution call in flight
	StateResolved                // Resolution succeeded
	StateCancelled               // User cancelled
	StateFailed                  // Resolution call failed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresenting:
		return "presenting"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateResolved || s == StateCancelled || s == StateFailed
}

// ErrInvalidTransition is returned when a method is called in the wrong state.
var ErrInvalidTransition = errors.New("invalid conflict state transition")

// Resolver drives a single conflict from presentation to a terminal state.
// It is not safe for concurrent use; each conflict gets its own Resolver.
type Resolver struct {
	api        core.API
	instanceID string
	request    core.DeployRequest

	state  State
	info   core.ConflictInfo
	action Action
}

// NewResolver creates a Resolver for a deploy request that hit a conflict.
func NewResolver(api core.API, instanceID string, req core.DeployRequest) *Resolver {
	return &Resolver{
		api:        api,
		instanceID: instanceID,
		request:    req,
		state:      StateIdle,
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	return r.state
}

// Info returns the conflict being resolved.
func (r *Resolver) Info() core.ConflictInfo {
	return r.info
}

// Action returns the chosen action, or nil.
func (r *Resolver) Action() Action {
	return r.action
}

// Present enters the Presenting state for info.
func (r *Resolver) Present(info core.ConflictInfo) error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: present from %s", ErrInvalidTransition, r.state)
	}
	r.info = info
	r.state = StatePresenting
	return nil
}

// Options returns the actions available for the presented conflict.
func (r *Resolver) Options() []Action {
	return Options(r.info)
}

// Cancel abandons the conflict.
func (r *Resolver) Cancel() error {
	if r.state != StatePresenting {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, r.state)
	}
	r.state = StateCancelled
	return nil
}

// Resolve applies action through the external system. An action that is not
// offered is rejected with core.ErrActionUnavailable before any call is made
// and the conflict stays in Presenting.
func (r *Resolver) Resolve(ctx context.Context, action Action) (*core.ResolveResponse, error) {
	if r.state != StatePresenting {
		return nil, fmt.Errorf("%w: resolve from %s", ErrInvalidTransition, r.state)
	}
	if !offered(action, r.Options()) {
		name := "<nil>"
		if action != nil {
			name = action.Name()
		}
		return nil, core.ErrActionUnavailable.WithDetails(map[string]interface{}{
			"action": name,
			"target": r.info.Existing.ID,
		}).WithMessage(fmt.Sprintf("conflict action %s not available for %s", name, r.info.Existing.Name))
	}

	r.action = action
	r.state = StateResolving
	logger.Info("resolving conflict on %s with %s", r.info.Existing.ID, action.Name())

	resp, err := r.api.ResolveConflict(ctx, r.instanceID, core.ResolveRequest{
		TargetID:      r.info.Existing.ID,
		Action:        action.Name(),
		DeployRequest: r.request,
	})
	if err == nil && resp != nil && resp.Error != "" {
		err = errors.New(resp.Error)
	}
	if err == nil && (resp == nil || !resp.Success) {
		err = errors.New("external system did not confirm resolution")
	}
	if err != nil {
		r.state = StateFailed
		return nil, core.ErrResolveFailed.WithCause(err)
	}

	r.state = StateResolved
	return resp, nil
}
