package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/executor"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
	"github.com/devicelab-dev/flowdeploy/pkg/planner"
)

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	Flows      *flow.Set
	Planner    *planner.Planner
	API        core.API
	Directions []core.Direction // Defaults to source then destination

	// Runner configures batch execution. Cache and Refresh are filled in
	// from the planner when unset.
	Runner executor.RunnerConfig
}

// Session runs the wizard against a live external system. It is not safe
// for concurrent use.
type Session struct {
	flows   *flow.Set
	planner *planner.Planner
	runner  *executor.Runner
	dirs    []core.Direction
	state   State
}

// NewSession creates a Session in the SelectFlows step.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		flows:   cfg.Flows,
		planner: cfg.Planner,
		dirs:    cfg.Directions,
		state:   SelectFlows{},
	}
	if len(s.dirs) == 0 {
		s.dirs = []core.Direction{core.DirectionSource, core.DirectionDestination}
	}

	rc := cfg.Runner
	if rc.Cache == nil {
		rc.Cache = cfg.Planner.Cache()
	}
	if rc.Refresh == nil {
		rc.Refresh = s.refresh
	}
	s.runner = executor.New(cfg.API, rc)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Dispatch applies e to the current state.
func (s *Session) Dispatch(e Event) error {
	next, err := Reduce(s.state, e)
	if err != nil {
		return err
	}
	if next.Step() != s.state.Step() {
		logger.Debug("wizard: %s -> %s", s.state.Step(), next.Step())
	}
	s.state = next
	return nil
}

// Select replaces the flow selection.
func (s *Session) Select(ids ...string) error {
	for _, id := range ids {
		if _, ok := s.flows.Get(id); !ok {
			return fmt.Errorf("unknown flow %q", id)
		}
	}
	return s.Dispatch(SetSelection{IDs: ids})
}

// Configure plans the selected flows and moves to ConfigureTargets. A
// blocked instance keeps the wizard in SelectFlows and returns the
// *planner.BlockedError.
func (s *Session) Configure(ctx context.Context) error {
	st, ok := s.state.(SelectFlows)
	if !ok {
		return &TransitionError{Step: s.state.Step(), Event: ConfigsReady{}}
	}
	if gaps := SelectionGaps(st.Selected); len(gaps) > 0 {
		return &ValidationGapError{Step: StepSelectFlows, Gaps: gaps}
	}

	configs, err := s.planner.Plan(ctx, s.flows.Select(st.Selected), s.dirs)
	if err != nil {
		return err
	}
	return s.Dispatch(ConfigsReady{Configs: configs})
}

// SelectTarget selects a path for the config with key and records the
// inferred hierarchy level.
func (s *Session) SelectTarget(key, pathID string) error {
	st, ok := s.state.(ConfigureTargets)
	if !ok {
		return &TransitionError{Step: s.state.Step(), Event: SelectTarget{}}
	}
	level := ""
	for _, c := range st.Configs {
		if c.Key() == key && pathID != "" {
			c.SelectedTargetPathID = pathID
			level = s.planner.InferLevel(c)
		}
	}
	return s.Dispatch(SelectTarget{Key: key, PathID: pathID, Level: level})
}

// Deploy runs the reviewed configs as one batch and moves to ShowResults.
// Cancelling ctx stops the batch between items; the partial result is
// still recorded.
func (s *Session) Deploy(ctx context.Context) (*core.BatchResult, error) {
	st, ok := s.state.(ReviewAndDeploy)
	if !ok {
		return nil, &TransitionError{Step: s.state.Step(), Event: BatchCompleted{}}
	}
	batch, err := s.runner.DeployBatch(ctx, st.Configs)
	if err != nil {
		return nil, err
	}
	if err := s.Dispatch(BatchCompleted{Batch: batch}); err != nil {
		return nil, err
	}
	return batch, nil
}

// ReviewAndFix returns to ConfigureTargets with the failed configs,
// refreshed against the current trees. Selections that no longer exist
// are cleared so they must be chosen again.
func (s *Session) ReviewAndFix(ctx context.Context) error {
	st, ok := s.state.(ShowResults)
	if !ok {
		return &TransitionError{Step: s.state.Step(), Event: ReviewAndFix{}}
	}
	if st.Terminal() {
		return ErrNothingToFix
	}

	failed := st.Batch.Failed()
	configs := make([]core.DeploymentConfig, 0, len(failed))
	for _, r := range failed {
		cfg, err := s.refresh(ctx, r.Config)
		switch {
		case errors.Is(err, core.ErrStaleTarget):
			cfg.SelectedTargetPathID = ""
			cfg.AutoSelected = false
			cfg.InferredLevel = ""
		case err != nil:
			logger.Warn("review %s: %v", r.Config.Key(), err)
			cfg = r.Config
		}
		configs = append(configs, cfg)
	}
	return s.Dispatch(ReviewAndFix{Configs: configs})
}

func (s *Session) refresh(ctx context.Context, cfg core.DeploymentConfig) (core.DeploymentConfig, error) {
	f, ok := s.flows.Get(cfg.FlowID)
	if !ok {
		return cfg, fmt.Errorf("unknown flow %q", cfg.FlowID)
	}
	return s.planner.Refresh(ctx, cfg, f)
}
