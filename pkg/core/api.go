package core

import "context"

// DeployRequest asks the external system to create a new target.
type DeployRequest struct {
	FlowID         string  `json:"flowId"`
	TargetParentID *string `json:"targetParentId"`
	NewName        string  `json:"newName"`
	TemplateSource string  `json:"templateSource"`
}

// NewDeployRequest builds the request for a config.
func NewDeployRequest(cfg DeploymentConfig) DeployRequest {
	req := DeployRequest{
		FlowID:         cfg.FlowID,
		NewName:        cfg.GeneratedName,
		TemplateSource: cfg.TemplateSource,
	}
	if parent := cfg.ParentID(); parent != "" {
		req.TargetParentID = &parent
	}
	return req
}

// DeployResponse is either a success or a conflict.
type DeployResponse struct {
	Success    bool          `json:"success"`
	TargetID   string        `json:"targetId,omitempty"`
	TargetName string        `json:"targetName,omitempty"`
	Conflict   *ConflictInfo `json:"conflict,omitempty"`
}

// ResolveRequest repeats a deploy with a conflict resolution action. The
// original deploy fields travel with it so the external system can redo the
// creation.
type ResolveRequest struct {
	TargetID string `json:"targetId"`
	Action   string `json:"action"`
	DeployRequest
}

// ResolveResponse is the outcome of a conflict resolution call.
type ResolveResponse struct {
	Success    bool   `json:"success"`
	TargetID   string `json:"targetId,omitempty"`
	TargetName string `json:"targetName,omitempty"`
	Error      string `json:"error,omitempty"`
}

// API is the external orchestration system as seen by this engine.
// Implementations are expected to honor ctx cancellation.
type API interface {
	// TargetPaths returns the full path tree snapshot for one instance.
	TargetPaths(ctx context.Context, instanceID string) ([]TargetPath, error)

	// Deploy creates a new target. A name collision is reported through
	// DeployResponse.Conflict, not as an error.
	Deploy(ctx context.Context, instanceID string, req DeployRequest) (*DeployResponse, error)

	// ResolveConflict applies a resolution action to a previous conflict.
	ResolveConflict(ctx context.Context, instanceID string, req ResolveRequest) (*ResolveResponse, error)

	// DeploymentSettings returns the configured base paths for an instance.
	DeploymentSettings(ctx context.Context, instanceID string) (*DeploymentSettings, error)
}
