package bench

import (
	"fmt"
	"strings"
)

// ExternalCommandError reports a bench command that failed, exited non-zero
// or timed out.
type ExternalCommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExternalCommandError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s: timed out", cmdline)
	case e.Err != nil:
		return fmt.Sprintf("%s: exit code %d: %v", cmdline, e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("%s: exit code %d", cmdline, e.ExitCode)
	}
}

func (e *ExternalCommandError) Unwrap() error { return e.Err }

// Diagnostic returns the captured output, stderr first.
func (e *ExternalCommandError) Diagnostic() string {
	out := strings.TrimSpace(e.Stderr)
	if so := strings.TrimSpace(e.Stdout); so != "" {
		if out != "" {
			out += "\n"
		}
		out += so
	}
	return out
}
