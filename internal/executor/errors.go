package executor

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

var (
	// ErrNotDirectory is returned when the workspace root is missing or not a directory.
	ErrNotDirectory = errors.New("root directory does not exist or is not a directory")

	// ErrNoInstructions is returned for an empty batch.
	ErrNoInstructions = errors.New("no instructions")

	// ErrApprovalDenied is returned when an operator denies a gated instruction
	// or the approval times out.
	ErrApprovalDenied = errors.New("approval denied")

	// ErrApprovalUnavailable is returned when an instruction requires approval
	// but no gate is configured.
	ErrApprovalUnavailable = errors.New("approval required but no approval gate configured")

	// ErrOutsideRoot is returned when an instruction targets a path outside the workspace.
	ErrOutsideRoot = errors.New("path escapes workspace root")
)

// Phase is the file step a WriteError happened in.
type Phase string

const (
	PhaseRead   Phase = "read"
	PhaseParse  Phase = "parse"
	PhaseWrite  Phase = "write"
	PhaseVerify Phase = "verify"
)

// WriteError is a failure while reading, parsing, writing or verifying a
// workspace file. Only WriteErrors trigger rollback.
type WriteError struct {
	Phase Phase
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeErr(phase Phase, path string, err error) error {
	return &WriteError{Phase: phase, Path: path, Err: err}
}

// InstructionError annotates a failure with the instruction that caused it.
type InstructionError struct {
	Index int
	Type  instruction.Type
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s) failed: %v", e.Index, e.Type, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// IsWriteError reports whether err came from the file write phase.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
