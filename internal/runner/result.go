package runner

import (
	"strings"
	"time"
)

// Result holds the outcome of one command execution.
type Result struct {
	Command string `json:"command"`
	// Stdout is every non-blank line the command wrote to standard output,
	// line terminators included.
	Stdout string `json:"stdout"`
	// ExitCode is the process exit status. -1 means the command was killed
	// after exceeding its deadline or by a signal.
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Tail returns at most maxLines trailing lines of the captured stdout.
func (r Result) Tail(maxLines int) string {
	return tailLines(r.Stdout, maxLines)
}

func tailLines(input string, maxLines int) string {
	if input == "" || maxLines <= 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
