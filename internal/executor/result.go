package executor

import "github.com/fyrsmithlabs/autopatchd/internal/approval"

// Result summarises one Execute call.
type Result struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	Warnings      []string `json:"warnings,omitempty"`
	LintFailed    bool     `json:"lintFailed,omitempty"`
	BuildFailed   bool     `json:"buildFailed,omitempty"`
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
	RemoteOps     int      `json:"remoteOps,omitempty"`
	RolledBack    bool     `json:"rolledBack,omitempty"`

	// Approvals lists the gate decisions taken during the batch.
	Approvals []approval.Decision `json:"approvals,omitempty"`

	// Err is the error that aborted the batch, if any.
	Err error `json:"-"`
}

// ErrorMessage returns the abort error message, or "".
func (r *Result) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func failure(err error, msg string) *Result {
	return &Result{Success: false, Message: msg, Err: err}
}
