// Package wizard models the deployment wizard as a state machine: select
// flows, configure targets, review and deploy, show results.
//
// Transitions are computed by the pure Reduce function. Session wraps it
// with the side effects (planning, deploying) a running wizard needs.
package wizard

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Step names a wizard state.
type Step int

const (
	StepSelectFlows Step = iota
	StepConfigureTargets
	StepReviewAndDeploy
	StepShowResults
)

func (s Step) String() string {
	switch s {
	case StepSelectFlows:
		return "select_flows"
	case StepConfigureTargets:
		return "configure_targets"
	case StepReviewAndDeploy:
		return "review_and_deploy"
	case StepShowResults:
		return "show_results"
	default:
		return "unknown"
	}
}

// State is one of SelectFlows, ConfigureTargets, ReviewAndDeploy or
// ShowResults. Each carries only the data valid in that step.
type State interface {
	Step() Step
	isState()
}

// SelectFlows is the initial step. Selected holds flow ids in selection order.
type SelectFlows struct {
	Selected []string
}

// ConfigureTargets holds one config per selected flow and direction.
type ConfigureTargets struct {
	Selected []string
	Configs  []core.DeploymentConfig
}

// ReviewAndDeploy holds the configs that passed the configure gate.
type ReviewAndDeploy struct {
	Selected []string
	Configs  []core.DeploymentConfig
}

// ShowResults holds the outcome of the last batch.
type ShowResults struct {
	Selected []string
	Configs  []core.DeploymentConfig
	Batch    *core.BatchResult
}

func (SelectFlows) Step() Step      { return StepSelectFlows }
func (ConfigureTargets) Step() Step { return StepConfigureTargets }
func (ReviewAndDeploy) Step() Step  { return StepReviewAndDeploy }
func (ShowResults) Step() Step      { return StepShowResults }

func (SelectFlows) isState()      {}
func (ConfigureTargets) isState() {}
func (ReviewAndDeploy) isState()  {}
func (ShowResults) isState()      {}

// Terminal reports whether the results leave nothing to fix.
func (s ShowResults) Terminal() bool {
	return s.Batch == nil || s.Batch.FailCount == 0
}

// Gap is one reason a step cannot be left yet. Key is the config key, or
// empty for step-wide gaps.
type Gap struct {
	Key    string
	Reason string
}

func (g Gap) String() string {
	if g.Key == "" {
		return g.Reason
	}
	return g.Key + ": " + g.Reason
}

// ValidationGapError blocks a forward transition. The state is left unchanged.
type ValidationGapError struct {
	Step Step
	Gaps []Gap
}

func (e *ValidationGapError) Error() string {
	parts := make([]string, len(e.Gaps))
	for i, g := range e.Gaps {
		parts[i] = g.String()
	}
	return fmt.Sprintf("cannot leave %s: %s", e.Step, strings.Join(parts, "; "))
}

// Unwrap lets core.KindOf classify the error as a validation gap.
func (e *ValidationGapError) Unwrap() error {
	return core.ErrValidationGap
}

// TransitionError reports an event that is not valid in the current step.
type TransitionError struct {
	Step  Step
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%T not allowed in %s", e.Event, e.Step)
}
