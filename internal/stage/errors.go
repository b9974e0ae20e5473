package stage

import (
	"errors"
	"fmt"
)

// ErrToolFailed reports a wrapped tool that exited with a non-zero status.
var ErrToolFailed = errors.New("tool failed")

// ErrInvalidStage reports a stage that cannot be run as given.
var ErrInvalidStage = errors.New("invalid stage")

// ToolError carries the context of a failed tool run.
type ToolError struct {
	Stage    string
	Command  string
	ExitCode int
	TimedOut bool
	// Tail holds the last lines of the captured stdout.
	Tail string
}

func (e *ToolError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: stage %s: timed out", ErrToolFailed, e.Stage)
	}
	return fmt.Sprintf("%s: stage %s: exit status %d", ErrToolFailed, e.Stage, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return ErrToolFailed }
