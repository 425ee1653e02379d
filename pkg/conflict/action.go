// Package conflict resolves "target already exists" responses from the
// external system.
package conflict

import (
	"fmt"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Action is a resolution strategy. The set is closed: only this package can
// implement it, so a type switch over the three variants is exhaustive.
type Action interface {
	// Name is the wire value sent to the external system.
	Name() string
	// Destructive reports whether the action removes existing work.
	Destructive() bool
	action()
}

// DeployAnyway creates an additional target next to the existing one.
type DeployAnyway struct{}

// DeleteAndDeploy removes the existing target, then creates the new one.
type DeleteAndDeploy struct{}

// UpdateVersion pushes a new version into the existing, version-controlled target.
type UpdateVersion struct{}

func (DeployAnyway) Name() string    { return "deploy_anyway" }
func (DeleteAndDeploy) Name() string { return "delete_and_deploy" }
func (UpdateVersion) Name() string   { return "update_version" }

func (DeployAnyway) Destructive() bool    { return false }
func (DeleteAndDeploy) Destructive() bool { return true }
func (UpdateVersion) Destructive() bool   { return false }

func (DeployAnyway) action()    {}
func (DeleteAndDeploy) action() {}
func (UpdateVersion) action()   {}

// ParseAction converts a wire name to an Action.
func ParseAction(name string) (Action, error) {
	switch name {
	case "deploy_anyway":
		return DeployAnyway{}, nil
	case "delete_and_deploy":
		return DeleteAndDeploy{}, nil
	case "update_version":
		return UpdateVersion{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict action %q", name)
	}
}

// Options returns the actions available for a conflict. UpdateVersion is only
// offered when the existing target is under version control.
func Options(info core.ConflictInfo) []Action {
	opts := []Action{DeployAnyway{}, DeleteAndDeploy{}}
	if info.Existing.HasVersionControl {
		opts = append(opts, UpdateVersion{})
	}
	return opts
}

// Describe returns a one-line explanation of an action for prompts.
func Describe(a Action, info core.ConflictInfo) string {
	switch a.(type) {
	case DeployAnyway:
		return "create an additional target alongside " + info.Existing.Name
	case DeleteAndDeploy:
		return fmt.Sprintf("delete %s (%d running, %d stopped) and deploy fresh",
			info.Existing.Name, info.Existing.RunningCount, info.Existing.StoppedCount)
	case UpdateVersion:
		return "update " + info.Existing.Name + " to the new version"
	default:
		panic(fmt.Sprintf("conflict: unhandled action %T", a))
	}
}

func offered(a Action, opts []Action) bool {
	if a == nil {
		return false
	}
	for _, o := range opts {
		if o.Name() == a.Name() {
			return true
		}
	}
	return false
}
