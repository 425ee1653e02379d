package report

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	RunID  string // Batch run id
	Server string // External system URL, informational
}

// BuildSkeleton creates the initial report structure from the batch configs.
// Every item starts as pending, in batch order.
func BuildSkeleton(configs []core.DeploymentConfig, cfg BuilderConfig) *Index {
	now := time.Now()

	index := &Index{
		Version:     Version,
		RunID:       cfg.RunID,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Server:      cfg.Server,
		Items:       make([]ItemEntry, len(configs)),
	}

	for i, c := range configs {
		index.Items[i] = ItemEntry{
			Index:      i,
			Key:        c.Key(),
			FlowID:     c.FlowID,
			FlowName:   c.FlowName,
			Direction:  c.Target,
			InstanceID: c.InstanceID,
			ParentID:   c.ParentID(),
			NewName:    c.GeneratedName,
			Status:     StatusPending,
		}
	}
	index.Summary = computeSummary(index.Items)
	return index
}

// WriteSkeleton writes the initial skeleton to disk.
func WriteSkeleton(outputDir string, index *Index) error {
	if err := ensureDir(outputDir); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := atomicWriteJSON(indexPath(outputDir), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// statusOf maps a finished deployment result to a report status.
func statusOf(r core.DeploymentResult) Status {
	switch {
	case r.Success:
		return StatusSucceeded
	case r.ErrorKind == core.KindCancellation:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
