// Package printer renders operator-facing CLI output: coloured status
// lines, formatted errors and the plan, status and run report tables.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Users can disable colours with NO_COLOR.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Output is where non-error output goes. Tests replace it.
var Output io.Writer = os.Stdout

// ErrOutput is where formatted errors go.
var ErrOutput io.Writer = os.Stderr

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Output, msg)
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Fprintf(Output, format, a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Output, msg)
}

// Step prints a step of a multi-step operation.
func Step(format string, a ...any) {
	cyan.Fprintf(Output, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation and suggestions to
// ErrOutput and returns a plain error for cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with additional key/value details, printed in
// the order given.
func ErrorWithContext(title string, explanation string, context [][2]string, suggestions []string) error {
	red.Fprintf(ErrOutput, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(ErrOutput, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintln(ErrOutput)
		for _, kv := range context {
			fmt.Fprintf(ErrOutput, "  %s: %s\n", kv[0], kv[1])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintln(ErrOutput)
		if len(suggestions) == 1 {
			fmt.Fprintf(ErrOutput, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(ErrOutput, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(ErrOutput, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// State colours a stage or task state for table output.
func State(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "complete", "succeeded":
		return green.Sprint(state)
	case "skipped":
		return faint.Sprint(state)
	case "failed":
		return red.Sprint(state)
	case "blocked", "pending":
		return yellow.Sprint(state)
	default:
		return state
	}
}
