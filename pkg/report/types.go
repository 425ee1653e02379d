// Package report provides JSON-based batch reporting with per-item updates.
//
// Architecture:
//   - report.json: run index (status, summary, one entry per batch item),
//     rewritten atomically after every item completes
//   - report.html: static rendering of the same data for browsers
//
// Consumers poll report.json and use UpdateSeq to detect changes.
package report

import (
	"time"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the report file for one batch run.
type Index struct {
	Version     string      `json:"version"`
	RunID       string      `json:"runId"`
	UpdateSeq   uint64      `json:"updateSeq"`
	Status      Status      `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Server      string      `json:"server,omitempty"`
	Summary     Summary     `json:"summary"`
	Items       []ItemEntry `json:"items"`
}

// Summary contains item counts.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// ItemEntry is one deployment config of the batch.
type ItemEntry struct {
	Index      int            `json:"index"`
	Key        string         `json:"key"`
	FlowID     string         `json:"flowId"`
	FlowName   string         `json:"flowName,omitempty"`
	Direction  core.Direction `json:"direction"`
	InstanceID string         `json:"instanceId"`
	ParentID   string         `json:"parentId,omitempty"`
	NewName    string         `json:"newName"`

	Status     Status         `json:"status"`
	TargetID   string         `json:"targetId,omitempty"`
	TargetName string         `json:"targetName,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  core.ErrorKind `json:"errorKind,omitempty"`

	StartTime   *time.Time `json:"startTime,omitempty"`
	Duration    *int64     `json:"duration,omitempty"` // Milliseconds
	UpdateSeq   uint64     `json:"updateSeq"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}
