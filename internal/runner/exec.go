package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ExecRunner runs tools as local child processes.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates an ExecRunner. logger may be nil.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{logger: logger}
}

// Run starts the command and waits for it. Cancelling ctx kills the process.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if cmd.Dir != "" {
		if err := os.MkdirAll(cmd.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	start := time.Now()
	r.logger.Info("tool_started", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir))

	err := c.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr := &ToolError{Tool: cmd.Name, ExitCode: exitErr.ExitCode(), Output: tail(out.String(), outputTailLines)}
			r.logger.Error("tool_failed",
				zap.String("command", cmd.String()),
				zap.Int("exit_code", toolErr.ExitCode),
				zap.String("output", toolErr.Output))
			return toolErr
		}
		return fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	r.logger.Info("tool_finished",
		zap.String("command", cmd.String()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
