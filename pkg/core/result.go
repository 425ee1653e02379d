package core

import (
	"fmt"
	"time"
)

// DeploymentConfig is the per-flow, per-direction plan built by the wizard
// and consumed by the executor.
type DeploymentConfig struct {
	// Identity
	FlowID   string    `json:"flowId"`
	FlowName string    `json:"flowName,omitempty"`
	Target   Direction `json:"target"`

	// Instance resolution (HierarchyValue is the root-level value that names the instance)
	HierarchyValue string `json:"hierarchyValue"`
	InstanceID     string `json:"instanceId"`

	// Placement
	AvailableTargetPaths []TargetPath `json:"availableTargetPaths"`
	SelectedTargetPathID string       `json:"selectedTargetPathId,omitempty"` // Empty means none selected
	BasePathID           string       `json:"basePathId,omitempty"`
	CreateAtBase         bool         `json:"createAtBase,omitempty"` // Explicit "create new at base path"
	AutoSelected         bool         `json:"autoSelected,omitempty"` // Selection came from path resolution
	InferredLevel        string       `json:"inferredLevel,omitempty"`

	// Naming
	GeneratedName  string `json:"generatedName"`
	TemplateSource string `json:"templateSource,omitempty"`
}

// Key identifies the config within a batch.
func (c DeploymentConfig) Key() string {
	return c.FlowID + "/" + string(c.Target)
}

// HasTarget returns true if the config has somewhere to deploy into.
func (c DeploymentConfig) HasTarget() bool {
	if c.SelectedTargetPathID != "" {
		return true
	}
	return c.CreateAtBase && c.BasePathID != ""
}

// ParentID returns the folder the new target is created in, or "" for none.
func (c DeploymentConfig) ParentID() string {
	if c.SelectedTargetPathID != "" {
		return c.SelectedTargetPathID
	}
	if c.CreateAtBase {
		return c.BasePathID
	}
	return ""
}

// Select sets a user-chosen target path. The id must be one of the available paths.
func (c *DeploymentConfig) Select(id string) error {
	if id == "" {
		c.SelectedTargetPathID = ""
		c.AutoSelected = false
		return nil
	}
	for _, p := range c.AvailableTargetPaths {
		if p.ID == id {
			c.SelectedTargetPathID = id
			c.AutoSelected = false
			c.CreateAtBase = false
			return nil
		}
	}
	return fmt.Errorf("target path %q is not available for %s", id, c.Key())
}

// SelectedPath returns the selected TargetPath record.
func (c DeploymentConfig) SelectedPath() (TargetPath, bool) {
	for _, p := range c.AvailableTargetPaths {
		if p.ID == c.SelectedTargetPathID {
			return p, true
		}
	}
	return TargetPath{}, false
}

// ExistingTarget describes the target that caused a naming conflict.
type ExistingTarget struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	RunningCount      int    `json:"runningCount"`
	StoppedCount      int    `json:"stoppedCount"`
	HasVersionControl bool   `json:"hasVersionControl"`
}

// ConflictInfo is returned by a deploy call when the name already exists.
type ConflictInfo struct {
	Message  string         `json:"message"`
	Existing ExistingTarget `json:"existing"`
}

// DeploymentResult captures the outcome of one execution attempt.
type DeploymentResult struct {
	Config       DeploymentConfig `json:"config"`
	Success      bool             `json:"success"`
	TargetID     string           `json:"targetId,omitempty"`
	TargetName   string           `json:"targetName,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	ErrorKind    ErrorKind        `json:"errorKind,omitempty"`
	Resolution   string           `json:"resolution,omitempty"` // Conflict action applied, if any

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// NewFailedResult builds a failed result from an error.
func NewFailedResult(cfg DeploymentConfig, err error) DeploymentResult {
	return DeploymentResult{
		Config:       cfg,
		Success:      false,
		ErrorMessage: err.Error(),
		ErrorKind:    KindOf(err),
	}
}

// BatchResult aggregates the results of one batch in input order.
type BatchResult struct {
	RunID        string             `json:"runId,omitempty"`
	Results      []DeploymentResult `json:"results"`
	SuccessCount int                `json:"successCount"`
	FailCount    int                `json:"failCount"`
	Total        int                `json:"total"`
	Cancelled    bool               `json:"cancelled,omitempty"`
}

// Append adds a result and recomputes the summary.
func (b *BatchResult) Append(r DeploymentResult) {
	b.Results = append(b.Results, r)
	b.ComputeSummary()
}

// ComputeSummary calculates counts from the Results slice. Total is never
// lowered below the number of results; callers preset it to the batch size.
func (b *BatchResult) ComputeSummary() {
	b.SuccessCount = 0
	b.FailCount = 0
	for _, r := range b.Results {
		if r.Success {
			b.SuccessCount++
		} else {
			b.FailCount++
		}
	}
	if b.Total < len(b.Results) {
		b.Total = len(b.Results)
	}
}

// Success returns true if every item succeeded.
func (b *BatchResult) Success() bool {
	return b.FailCount == 0 && b.SuccessCount == b.Total
}

// Failed returns the results that did not succeed, in order.
func (b *BatchResult) Failed() []DeploymentResult {
	var failed []DeploymentResult
	for _, r := range b.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}
