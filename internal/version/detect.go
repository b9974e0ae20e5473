// Package version detects the versions of wrapped tools.
package version

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Info captures a tool version installed on the system.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Command string `json:"command"`
}

// ErrUnparsable reports version output without a recognizable version number.
var ErrUnparsable = errors.New("unable to parse version")

var versionRegex = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// Detect runs command (for example "cutadapt --version") without a shell and
// returns the first N.N[.N] version found in its combined output.
func Detect(ctx context.Context, name, command string) (Info, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Info{}, fmt.Errorf("detect %s version: empty command", name)
	}
	out, err := runCommand(ctx, fields[0], fields[1:]...)
	if err != nil {
		return Info{}, fmt.Errorf("detect %s version: %w", name, err)
	}
	v, err := Parse(out)
	if err != nil {
		return Info{}, fmt.Errorf("detect %s version: %w", name, err)
	}
	return Info{Name: name, Version: v, Command: command}, nil
}

// Parse extracts the first version number from text.
func Parse(text string) (string, error) {
	match := versionRegex.FindStringSubmatch(text)
	if len(match) < 2 {
		return "", fmt.Errorf("%w from %q", ErrUnparsable, strings.TrimSpace(text))
	}
	return match[1], nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// CompareMajorMinor compares major.minor portions of two semver-like versions.
// An empty desired version matches anything.
func CompareMajorMinor(desired, actual string) bool {
	if strings.TrimSpace(desired) == "" {
		return true
	}
	d := semverPrefix(desired)
	a := semverPrefix(actual)
	if d == "" || a == "" {
		return false
	}
	return strings.EqualFold(d, a)
}

func semverPrefix(version string) string {
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// Missing reports whether executing the command returns a not-found error.
func Missing(cmdErr error) bool {
	return errors.Is(cmdErr, exec.ErrNotFound)
}
