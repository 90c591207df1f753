package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
)

// ErrorSeverity classifies workflow step failures.
type ErrorSeverity string

const (
	// ErrorSeverityCritical fails the workflow.
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityLow is logged and the workflow continues.
	ErrorSeverityLow ErrorSeverity = "low"
)

// ErrTypeNotifyFailed is the application error type of an announcement that
// reached no notifier. Activities returning it are not retried.
const ErrTypeNotifyFailed = "NotifyFailed"

// WorkflowError records which step of a workflow failed.
type WorkflowError struct {
	Operation string
	Severity  ErrorSeverity
	Err       error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError wraps err with the failing operation.
func NewWorkflowError(operation string, severity ErrorSeverity, err error) *WorkflowError {
	return &WorkflowError{Operation: operation, Severity: severity, Err: err}
}

// notifyFailure converts an announcement error into a non-retryable
// application error so the workflow fails fast.
func notifyFailure(err error) error {
	if errors.Is(err, approval.ErrNotifyFailed) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotifyFailed, err)
	}
	return err
}

// IsNotifyFailure reports whether err came from an announcement that reached
// no notifier.
func IsNotifyFailure(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type() == ErrTypeNotifyFailed
	}
	return errors.Is(err, approval.ErrNotifyFailed)
}
