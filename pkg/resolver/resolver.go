// Package resolver maps a flow's hierarchy values onto existing target paths
// and infers which hierarchy level an existing path represents.
//
// Matching combines an exact base-path prefix check with a search for the
// flow's interior hierarchy values (every level except the root, which the
// base path already encodes, and the leaf, which deployment creates):
//
//	base     Root / To net1
//	interior [ou1]
//	path     Root / To net1 / o1 / ou1   -> match (ordered)
//	path     Root / Other                -> no match
//
// Failures inside matching never propagate: they are logged and reported as
// "no selection" so a malformed tree cannot abort the wizard.
package resolver

import (
	"fmt"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// Strictness controls how interior values are located after the base prefix.
type Strictness int

const (
	// Ordered finds each interior value in order, allowing unrelated folders
	// in between. A matched segment is never revisited.
	Ordered Strictness = iota
	// Contiguous requires the interior values to follow the base prefix
	// directly, with nothing in between.
	Contiguous
)

// String returns the config spelling of the strictness.
func (s Strictness) String() string {
	switch s {
	case Ordered:
		return "ordered"
	case Contiguous:
		return "contiguous"
	default:
		return "unknown"
	}
}

// ParseStrictness converts "ordered"/"contiguous" ("" means ordered).
func ParseStrictness(s string) (Strictness, error) {
	switch s {
	case "", "ordered":
		return Ordered, nil
	case "contiguous":
		return Contiguous, nil
	default:
		return Ordered, fmt.Errorf("unknown matching strictness %q", s)
	}
}

// Resolver performs path resolution and level inference.
type Resolver struct {
	strictness Strictness

	// visit, when set, sees each path before it is examined.
	visit func(core.TargetPath)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrictness sets the interior matching mode.
func WithStrictness(s Strictness) Option {
	return func(r *Resolver) {
		r.strictness = s
	}
}

// New creates a Resolver. The default strictness is Ordered.
func New(opts ...Option) *Resolver {
	r := &Resolver{strictness: Ordered}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strictness returns the configured matching mode.
func (r *Resolver) Strictness() Strictness {
	return r.strictness
}

// AutoSelect returns the id of the first available path that starts with the
// configured base path and contains the flow's interior hierarchy values.
// ok is false when nothing matches, no base path is configured, or matching
// fails internally.
func (r *Resolver) AutoSelect(f flow.Flow, dir core.Direction, instanceID string, available []core.TargetPath, base core.BaseSettings, h hierarchy.Hierarchy) (id string, ok bool) {
	matches := r.Matches(f, dir, instanceID, available, base, h)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// Matches returns the ids of every matching path, in traversal order.
func (r *Resolver) Matches(f flow.Flow, dir core.Direction, instanceID string, available []core.TargetPath, base core.BaseSettings, h hierarchy.Hierarchy) (ids []string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("%v", matchPanic(rec, map[string]interface{}{
				"flow":      f.ID,
				"direction": string(dir),
			}))
			ids = nil
		}
	}()

	if len(available) == 0 {
		return nil
	}

	bp, found := base.Lookup(instanceID, dir)
	if !found {
		logger.Debug("no %s base path for instance %s, skipping auto-selection of flow %s", dir, instanceID, f.ID)
		return nil
	}

	prefix, withRoot := basePrefix(*bp, core.NewTree(instanceID, available))
	interior := h.Interior(f, dir)

	for _, p := range available {
		if r.visit != nil {
			r.visit(p)
		}
		names := p.BelowRoot()
		if withRoot {
			names = p.RootFirst()
		}
		if !hasPrefix(names, prefix) {
			continue
		}
		if r.containsInterior(names[len(prefix):], interior) {
			ids = append(ids, p.ID)
		}
	}

	if len(ids) == 0 {
		logger.Debug("no target path under %s matches %v for flow %s (%s)", bp.Path, interior, f.ID, dir)
	}
	return ids
}

// basePrefix returns the base path's name sequence. When the base path is in
// the tree its full root-first names are used; otherwise the display path
// (which omits the root) is used and candidates are compared below the root.
func basePrefix(bp core.BasePath, tree *core.Tree) (names []string, withRoot bool) {
	if p, ok := tree.Lookup(bp.ID); ok {
		return p.RootFirst(), true
	}
	return bp.Segments(), false
}

// matchPanic converts a recovered value into an ErrMatchPanic.
func matchPanic(rec interface{}, details map[string]interface{}) error {
	return core.ErrMatchPanic.WithCause(fmt.Errorf("%v", rec)).WithDetails(details)
}

func hasPrefix(names, prefix []string) bool {
	if len(names) < len(prefix) {
		return false
	}
	for i := range prefix {
		if names[i] != prefix[i] {
			return false
		}
	}
	return true
}

// containsInterior reports whether rest holds the interior values according
// to the resolver's strictness.
func (r *Resolver) containsInterior(rest, interior []string) bool {
	if r.strictness == Contiguous {
		return hasPrefix(rest, interior)
	}

	cursor := 0
	for _, want := range interior {
		found := false
		for cursor < len(rest) {
			seg := rest[cursor]
			cursor++
			if seg == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
