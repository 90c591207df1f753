package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandNotAllowed is returned when a command fails the whitelist.
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrInvalidWhitelist is returned for malformed whitelist files.
	ErrInvalidWhitelist = errors.New("invalid whitelist")

	// ErrNotConfigured is returned when no remote host is configured.
	ErrNotConfigured = errors.New("remote host not configured")
)

// ExitError reports a remote command that exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command failed (Code %d): %s", e.Code, e.Stderr)
}
