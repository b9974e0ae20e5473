package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/stage"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitToolFailure = 255
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	// loadApp installs the configured logger as the slog default.
	slog.Default().Error("scopetools failed", logging.Error(err))
	return exitCode(err)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, stage.ErrToolFailed):
		return exitToolFailure
	default:
		return exitFailure
	}
}
