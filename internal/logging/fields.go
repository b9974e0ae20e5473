package logging

import "log/slog"

// Canonical log field names shared across packages.
const (
	KeyComponent  = "component"
	KeySample     = "sample"
	KeyStage      = "stage"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeySection    = "section"
	KeyPath       = "path"
	KeyRule       = "rule"
	KeyError      = "error"
)

func Sample(name string) slog.Attr  { return slog.String(KeySample, name) }
func Stage(name string) slog.Attr   { return slog.String(KeyStage, name) }
func Command(cmd string) slog.Attr  { return slog.String(KeyCommand, cmd) }
func ExitCode(code int) slog.Attr   { return slog.Int(KeyExitCode, code) }
func DurationMS(ms int64) slog.Attr { return slog.Int64(KeyDurationMS, ms) }
func Section(name string) slog.Attr { return slog.String(KeySection, name) }
func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func Rule(name string) slog.Attr    { return slog.String(KeyRule, name) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
