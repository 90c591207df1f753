package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const maxOutputTail = 2000

// CommandRunner runs a workspace command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// runStep runs argv under its own timeout. A timeout is reported as a
// failure of the step.
func runStep(ctx context.Context, r CommandRunner, dir string, argv []string, timeout time.Duration) error {
	name := strings.Join(argv, " ")
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.Run(stepCtx, dir, argv)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timeout after %v", name, timeout)
		}
		return fmt.Errorf("%s failed: %w (output: %s)", name, err, tail(string(out), maxOutputTail))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
