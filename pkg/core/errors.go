package core

import (
	"errors"
	"fmt"
)

// DeployError represents a structured error with kind and details
type DeployError struct {
	Kind    ErrorKind
	Code    string                 // Machine-readable code: tree_fetch_failed, user_cancelled, etc.
	Message string                 // Human-readable message
	Details map[string]interface{} // Additional context
	Cause   error                  // Underlying error
}

// Error implements the error interface
func (e *DeployError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DeployError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so copies made with WithCause/WithMessage still
// satisfy errors.Is against the predefined values.
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *DeployError) WithCause(cause error) *DeployError {
	return &DeployError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *DeployError) WithMessage(msg string) *DeployError {
	return &DeployError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *DeployError) WithDetails(details map[string]interface{}) *DeployError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &DeployError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: merged,
		Cause:   e.Cause,
	}
}

// Predefined errors
var (
	// Matching errors (logged, never surfaced)
	ErrNoBasePath = &DeployError{
		Kind:    KindMatching,
		Code:    "no_base_path",
		Message: "no base path configured",
	}
	ErrMatchPanic = &DeployError{
		Kind:    KindMatching,
		Code:    "match_panic",
		Message: "path matching failed",
	}

	// Validation errors
	ErrValidationGap = &DeployError{
		Kind:    KindValidationGap,
		Code:    "validation_gap",
		Message: "configuration incomplete",
	}

	// Precondition errors
	ErrTreeFetch = &DeployError{
		Kind:    KindPrecondition,
		Code:    "tree_fetch_failed",
		Message: "failed to fetch target paths",
	}
	ErrSettingsFetch = &DeployError{
		Kind:    KindPrecondition,
		Code:    "settings_fetch_failed",
		Message: "failed to fetch deployment settings",
	}
	ErrUnknownInstance = &DeployError{
		Kind:    KindPrecondition,
		Code:    "unknown_instance",
		Message: "no instance configured for hierarchy value",
	}
	ErrInvalidHierarchy = &DeployError{
		Kind:    KindPrecondition,
		Code:    "invalid_hierarchy",
		Message: "invalid hierarchy",
	}

	// Item errors
	ErrDeployFailed = &DeployError{
		Kind:    KindItemDeployment,
		Code:    "deploy_failed",
		Message: "deployment failed",
	}
	ErrResolveFailed = &DeployError{
		Kind:    KindItemDeployment,
		Code:    "resolve_failed",
		Message: "conflict resolution failed",
	}
	ErrStaleTarget = &DeployError{
		Kind:    KindItemDeployment,
		Code:    "stale_target",
		Message: "selected target path no longer exists",
	}
	ErrActionUnavailable = &DeployError{
		Kind:    KindItemDeployment,
		Code:    "action_unavailable",
		Message: "conflict action not available",
	}

	// Cancellation errors
	ErrUserCancelled = &DeployError{
		Kind:    KindCancellation,
		Code:    "user_cancelled",
		Message: "deployment cancelled by user",
	}
	ErrBatchCancelled = &DeployError{
		Kind:    KindCancellation,
		Code:    "batch_cancelled",
		Message: "batch cancelled before this item ran",
	}
)

// KindOf returns the ErrorKind carried by err. Unclassified errors count as
// item deployment failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var de *DeployError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindItemDeployment
}
