// Package planner builds deployment configs for a set of selected flows.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
	"github.com/devicelab-dev/flowdeploy/pkg/naming"
	"github.com/devicelab-dev/flowdeploy/pkg/pathcache"
	"github.com/devicelab-dev/flowdeploy/pkg/resolver"
)

// Options configures a Planner.
type Options struct {
	Hierarchy hierarchy.Hierarchy
	Instances map[string]string // Instance key (root hierarchy value) -> instance id
	Template  string            // Naming template, DefaultTemplate when empty
	Resolver  *resolver.Resolver
	// CreateAtBase marks configs without an auto-selected target to be
	// created directly under the base path.
	CreateAtBase bool
}

// Planner turns flows into DeploymentConfigs.
type Planner struct {
	cache *pathcache.Cache
	opts  Options
}

// New creates a Planner reading trees and settings through cache.
func New(cache *pathcache.Cache, opts Options) *Planner {
	if opts.Resolver == nil {
		opts.Resolver = resolver.New()
	}
	if opts.Template == "" {
		opts.Template = naming.DefaultTemplate
	}
	return &Planner{cache: cache, opts: opts}
}

// Hierarchy returns the hierarchy the planner was configured with.
func (p *Planner) Hierarchy() hierarchy.Hierarchy {
	return p.opts.Hierarchy
}

// Resolver returns the path resolver in use.
func (p *Planner) Resolver() *resolver.Resolver {
	return p.opts.Resolver
}

// Cache returns the tree cache the planner reads through.
func (p *Planner) Cache() *pathcache.Cache {
	return p.cache
}

// InferLevel returns the hierarchy level of cfg's current selection, or ""
// when it cannot be inferred.
func (p *Planner) InferLevel(cfg core.DeploymentConfig) string {
	level, _ := p.opts.Resolver.InferConfigLevel(cfg, p.cache.BaseSettings(cfg.InstanceID), p.opts.Hierarchy)
	return level
}

// InstanceID maps an instance key to its configured instance id.
func (p *Planner) InstanceID(key string) (string, bool) {
	id, ok := p.opts.Instances[key]
	if !ok {
		id, ok = p.opts.Instances[strings.ToLower(key)]
	}
	return id, ok && id != ""
}

// BlockedError reports instances whose configuration could not be prepared.
// Configs for other instances are still returned alongside it.
type BlockedError struct {
	Instances map[string]error // Keyed by instance key
}

func (e *BlockedError) Error() string {
	keys := e.keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Instances[k]))
	}
	return "cannot configure " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-instance errors to errors.Is/As.
func (e *BlockedError) Unwrap() []error {
	keys := e.keys()
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, e.Instances[k])
	}
	return errs
}

func (e *BlockedError) keys() []string {
	keys := make([]string, 0, len(e.Instances))
	for k := range e.Instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plan builds one config per flow and direction, in flow order then
// direction order. Instance trees and settings are fetched concurrently
// before any config is built. Instances that cannot be resolved or fetched
// are reported through a *BlockedError; their flows get no config.
func (p *Planner) Plan(ctx context.Context, flows []flow.Flow, dirs []core.Direction) ([]core.DeploymentConfig, error) {
	h := p.opts.Hierarchy
	blocked := make(map[string]error)

	keyToID := make(map[string]string)
	var ids []string
	for _, f := range flows {
		for _, dir := range dirs {
			key := h.RootValue(f, dir)
			if _, seen := keyToID[key]; seen {
				continue
			}
			if _, isBlocked := blocked[key]; isBlocked {
				continue
			}
			id, ok := p.InstanceID(key)
			if !ok {
				blocked[key] = core.ErrUnknownInstance.WithDetails(map[string]interface{}{
					"key": key,
				}).WithMessage(fmt.Sprintf("no instance configured for %q", key))
				continue
			}
			keyToID[key] = id
			ids = append(ids, id)
		}
	}

	failed := p.cache.Prefetch(ctx, ids)
	for key, id := range keyToID {
		if err, ok := failed[id]; ok {
			blocked[key] = err
			delete(keyToID, key)
		}
	}
	base := p.cache.BaseSettings(ids...)

	var configs []core.DeploymentConfig
	for _, f := range flows {
		for _, dir := range dirs {
			key := h.RootValue(f, dir)
			id, ok := keyToID[key]
			if !ok {
				continue
			}
			tree, err := p.cache.Get(ctx, id)
			if err != nil {
				blocked[key] = err
				continue
			}
			configs = append(configs, p.build(f, dir, key, id, tree, base))
		}
	}

	if len(blocked) > 0 {
		for key, err := range blocked {
			logger.Error("configuration blocked for instance %s: %v", key, err)
		}
		return configs, &BlockedError{Instances: blocked}
	}
	return configs, nil
}

func (p *Planner) build(f flow.Flow, dir core.Direction, key, instanceID string, tree *core.Tree, base core.BaseSettings) core.DeploymentConfig {
	h := p.opts.Hierarchy
	cfg := core.DeploymentConfig{
		FlowID:               f.ID,
		FlowName:             f.DisplayName(),
		Target:               dir,
		HierarchyValue:       key,
		InstanceID:           instanceID,
		AvailableTargetPaths: tree.Paths,
		GeneratedName:        naming.Generate(f, dir, h, p.opts.Template),
		TemplateSource:       f.Template,
	}
	if bp, ok := base.Lookup(instanceID, dir); ok {
		cfg.BasePathID = bp.ID
	}

	if id, ok := p.opts.Resolver.AutoSelect(f, dir, instanceID, tree.Paths, base, h); ok {
		cfg.SelectedTargetPathID = id
		cfg.AutoSelected = true
		cfg.InferredLevel, _ = p.opts.Resolver.InferConfigLevel(cfg, base, h)
		logger.Debug("flow %s (%s): auto-selected %s", f.ID, dir, id)
	} else if p.opts.CreateAtBase && cfg.BasePathID != "" {
		cfg.CreateAtBase = true
	}
	return cfg
}

// Refresh updates a config with the current tree of its instance. An
// auto-selected target that is gone is resolved again; a user-selected one
// that is gone fails with core.ErrStaleTarget.
func (p *Planner) Refresh(ctx context.Context, cfg core.DeploymentConfig, f flow.Flow) (core.DeploymentConfig, error) {
	tree, err := p.cache.Get(ctx, cfg.InstanceID)
	if err != nil {
		return cfg, err
	}
	cfg.AvailableTargetPaths = tree.Paths

	if cfg.SelectedTargetPathID == "" || tree.Contains(cfg.SelectedTargetPathID) {
		return cfg, nil
	}
	if !cfg.AutoSelected {
		return cfg, core.ErrStaleTarget.WithDetails(map[string]interface{}{
			"target": cfg.SelectedTargetPathID,
		})
	}

	base := p.cache.BaseSettings(cfg.InstanceID)
	h := p.opts.Hierarchy
	id, ok := p.opts.Resolver.AutoSelect(f, cfg.Target, cfg.InstanceID, tree.Paths, base, h)
	if !ok {
		return cfg, core.ErrStaleTarget.WithMessage("auto-selected target path no longer exists and no replacement matches")
	}
	logger.Info("flow %s (%s): re-selected %s after tree change", cfg.FlowID, cfg.Target, id)
	cfg.SelectedTargetPathID = id
	cfg.InferredLevel, _ = p.opts.Resolver.InferConfigLevel(cfg, base, h)
	return cfg, nil
}

// IsBlocked reports whether err came from Plan's precondition checks.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}
