package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// ErrNothingToFix is returned by ReviewAndFix when the last batch had no failures.
var ErrNothingToFix = errors.New("batch has no failed items to fix")

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// ToggleFlow adds or removes a flow from the selection.
type ToggleFlow struct{ ID string }

// SetSelection replaces the selection.
type SetSelection struct{ IDs []string }

// ConfigsReady moves SelectFlows to ConfigureTargets with planned configs.
type ConfigsReady struct{ Configs []core.DeploymentConfig }

// SelectTarget picks an available path for a config. An empty PathID
// clears the selection. Level is the inferred hierarchy level for display.
type SelectTarget struct {
	Key    string
	PathID string
	Level  string
}

// UseBasePath chooses to create the target directly under the base path.
type UseBasePath struct{ Key string }

// SetName overrides the generated name of a config.
type SetName struct {
	Key  string
	Name string
}

// Next moves ConfigureTargets to ReviewAndDeploy.
type Next struct{}

// Back returns to the previous step before a batch ran.
type Back struct{}

// BatchCompleted moves ReviewAndDeploy to ShowResults.
type BatchCompleted struct{ Batch *core.BatchResult }

// ReviewAndFix returns from ShowResults to ConfigureTargets with the failed
// configs. Configs, when set, replaces them (e.g. refreshed copies).
type ReviewAndFix struct{ Configs []core.DeploymentConfig }

// Restart discards the results and starts over.
type Restart struct{}

func (ToggleFlow) isEvent()     {}
func (SetSelection) isEvent()   {}
func (ConfigsReady) isEvent()   {}
func (SelectTarget) isEvent()   {}
func (UseBasePath) isEvent()    {}
func (SetName) isEvent()        {}
func (Next) isEvent()           {}
func (Back) isEvent()           {}
func (BatchCompleted) isEvent() {}
func (ReviewAndFix) isEvent()   {}
func (Restart) isEvent()        {}

// Reduce returns the state that follows s after e. On error the returned
// state is s, unchanged. Reduce never mutates its inputs.
func Reduce(s State, e Event) (State, error) {
	switch st := s.(type) {
	case SelectFlows:
		return reduceSelect(st, e)
	case ConfigureTargets:
		return reduceConfigure(st, e)
	case ReviewAndDeploy:
		return reduceReview(st, e)
	case ShowResults:
		return reduceResults(st, e)
	}
	return s, fmt.Errorf("unknown state %T", s)
}

func reduceSelect(s SelectFlows, e Event) (State, error) {
	switch ev := e.(type) {
	case ToggleFlow:
		return SelectFlows{Selected: toggle(s.Selected, ev.ID)}, nil

	case SetSelection:
		return SelectFlows{Selected: dedupe(ev.IDs)}, nil

	case ConfigsReady:
		if gaps := SelectionGaps(s.Selected); len(gaps) > 0 {
			return s, &ValidationGapError{Step: StepSelectFlows, Gaps: gaps}
		}
		if len(ev.Configs) == 0 {
			return s, &ValidationGapError{Step: StepSelectFlows, Gaps: []Gap{{Reason: "no deployment configs for the selected flows"}}}
		}
		return ConfigureTargets{
			Selected: s.Selected,
			Configs:  copyConfigs(ev.Configs),
		}, nil
	}
	return s, &TransitionError{Step: s.Step(), Event: e}
}

func reduceConfigure(s ConfigureTargets, e Event) (State, error) {
	switch ev := e.(type) {
	case SelectTarget:
		configs, err := update(s.Configs, ev.Key, func(c *core.DeploymentConfig) error {
			if err := c.Select(ev.PathID); err != nil {
				return err
			}
			c.InferredLevel = ev.Level
			if ev.PathID == "" {
				c.InferredLevel = ""
			}
			return nil
		})
		if err != nil {
			return s, err
		}
		return ConfigureTargets{Selected: s.Selected, Configs: configs}, nil

	case UseBasePath:
		configs, err := update(s.Configs, ev.Key, func(c *core.DeploymentConfig) error {
			if c.BasePathID == "" {
				return core.ErrNoBasePath.WithDetails(map[string]interface{}{"key": c.Key()})
			}
			c.SelectedTargetPathID = ""
			c.AutoSelected = false
			c.InferredLevel = ""
			c.CreateAtBase = true
			return nil
		})
		if err != nil {
			return s, err
		}
		return ConfigureTargets{Selected: s.Selected, Configs: configs}, nil

	case SetName:
		configs, err := update(s.Configs, ev.Key, func(c *core.DeploymentConfig) error {
			c.GeneratedName = ev.Name
			return nil
		})
		if err != nil {
			return s, err
		}
		return ConfigureTargets{Selected: s.Selected, Configs: configs}, nil

	case Next:
		if gaps := ConfigGaps(s.Configs); len(gaps) > 0 {
			return s, &ValidationGapError{Step: StepConfigureTargets, Gaps: gaps}
		}
		return ReviewAndDeploy{Selected: s.Selected, Configs: s.Configs}, nil

	case Back:
		return SelectFlows{Selected: s.Selected}, nil
	}
	return s, &TransitionError{Step: s.Step(), Event: e}
}

func reduceReview(s ReviewAndDeploy, e Event) (State, error) {
	switch ev := e.(type) {
	case Back:
		return ConfigureTargets{Selected: s.Selected, Configs: s.Configs}, nil

	case BatchCompleted:
		if ev.Batch == nil {
			return s, errors.New("batch completed without a result")
		}
		return ShowResults{Selected: s.Selected, Configs: s.Configs, Batch: ev.Batch}, nil
	}
	return s, &TransitionError{Step: s.Step(), Event: e}
}

func reduceResults(s ShowResults, e Event) (State, error) {
	switch ev := e.(type) {
	case ReviewAndFix:
		if s.Terminal() {
			return s, ErrNothingToFix
		}
		configs := ev.Configs
		if configs == nil {
			for _, r := range s.Batch.Failed() {
				configs = append(configs, r.Config)
			}
		}
		selected := make([]string, 0, len(configs))
		for _, c := range configs {
			selected = append(selected, c.FlowID)
		}
		return ConfigureTargets{Selected: dedupe(selected), Configs: copyConfigs(configs)}, nil

	case Restart:
		return SelectFlows{}, nil
	}
	return s, &TransitionError{Step: s.Step(), Event: e}
}

// SelectionGaps returns the gaps blocking SelectFlows.
func SelectionGaps(selected []string) []Gap {
	if len(selected) == 0 {
		return []Gap{{Reason: "no flows selected"}}
	}
	return nil
}

// ConfigGaps returns the gaps blocking ConfigureTargets: every config needs
// a target (selected path or create-at-base) and a non-empty name.
func ConfigGaps(configs []core.DeploymentConfig) []Gap {
	var gaps []Gap
	for _, c := range configs {
		if !c.HasTarget() {
			gaps = append(gaps, Gap{Key: c.Key(), Reason: "no target path selected"})
		} else if c.SelectedTargetPathID != "" {
			if _, ok := c.SelectedPath(); !ok {
				gaps = append(gaps, Gap{Key: c.Key(), Reason: "selected target path is not available"})
			}
		}
		if strings.TrimSpace(c.GeneratedName) == "" {
			gaps = append(gaps, Gap{Key: c.Key(), Reason: "name is empty"})
		}
	}
	return gaps
}

func update(configs []core.DeploymentConfig, key string, fn func(*core.DeploymentConfig) error) ([]core.DeploymentConfig, error) {
	for i := range configs {
		if configs[i].Key() != key {
			continue
		}
		out := copyConfigs(configs)
		if err := fn(&out[i]); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("no config %q", key)
}

func copyConfigs(configs []core.DeploymentConfig) []core.DeploymentConfig {
	out := make([]core.DeploymentConfig, len(configs))
	copy(out, configs)
	return out
}

func toggle(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, x := range ids {
		if x == id {
			found = true
			continue
		}
		out = append(out, x)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
