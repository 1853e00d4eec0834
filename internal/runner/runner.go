// Package runner invokes the external demultiplexing and QC tools, either
// as local processes or inside a container.
package runner

import (
	"context"
	"fmt"
	"strings"
)

// Command is one external tool invocation.
type Command struct {
	Name   string   // executable
	Args   []string // arguments
	Dir    string   // working directory; created if missing
	Env    []string // extra KEY=VALUE pairs
	Mounts []string // host paths the tool reads or writes (containers bind them 1:1)
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands. A non-zero exit is reported as *ToolError.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ToolError reports a failed tool invocation (non-zero exit).
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string // tail of the combined output
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

const outputTailLines = 100

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
