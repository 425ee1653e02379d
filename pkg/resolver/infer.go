package resolver

import (
	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
)

// InferLevel returns the name of the hierarchy attribute an existing path
// represents, judged by how many levels below the configured base path it
// sits. Both depths are counted without the synthetic root segment.
//
// pathsByInstance is keyed by instance key (the root-level hierarchy value);
// base is keyed by instance id. Offset 0 is the instance level, which the base
// path itself encodes, so only offsets in (0, h.Len()) produce a level.
func (r *Resolver) InferLevel(targetPathID, instanceKey, instanceID string, dir core.Direction, pathsByInstance map[string][]core.TargetPath, base core.BaseSettings, h hierarchy.Hierarchy) (name string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("%v", matchPanic(rec, map[string]interface{}{
				"path":     targetPathID,
				"instance": instanceID,
			}))
			name, ok = "", false
		}
	}()

	bp, found := base.Lookup(instanceID, dir)
	if !found {
		return "", false
	}

	tree := core.NewTree(instanceID, pathsByInstance[instanceKey])
	selected, found := tree.Lookup(targetPathID)
	if !found {
		logger.Debug("path %s not in %s tree", targetPathID, instanceKey)
		return "", false
	}
	if r.visit != nil {
		r.visit(selected)
	}

	baseDepth := len(bp.Segments())
	if p, inTree := tree.Lookup(bp.ID); inTree {
		baseDepth = len(p.BelowRoot())
	}

	offset := len(selected.BelowRoot()) - baseDepth
	if offset <= 0 || offset >= h.Len() {
		return "", false
	}

	attr, _ := h.At(offset)
	return attr.Name, true
}

// InferConfigLevel runs InferLevel for a config's current selection.
func (r *Resolver) InferConfigLevel(cfg core.DeploymentConfig, base core.BaseSettings, h hierarchy.Hierarchy) (string, bool) {
	if cfg.SelectedTargetPathID == "" {
		return "", false
	}
	paths := map[string][]core.TargetPath{cfg.HierarchyValue: cfg.AvailableTargetPaths}
	return r.InferLevel(cfg.SelectedTargetPathID, cfg.HierarchyValue, cfg.InstanceID, cfg.Target, paths, base, h)
}
