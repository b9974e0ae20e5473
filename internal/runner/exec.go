package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/singleronbio/scopetools/internal/logging"
)

// ErrLaunch reports that the command could not be started at all.
var ErrLaunch = errors.New("launch command")

// pipeGrace is how long output may keep flowing after the deadline before
// the runner closes its end of the pipes.
const pipeGrace = 2 * time.Second

// Options configure how the runner executes commands.
type Options struct {
	// Shell interprets the command line. Defaults to /bin/sh.
	Shell string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is the full environment of the child. Defaults to os.Environ().
	Env []string
	// Timeout kills the command's process group when exceeded. Zero disables it.
	// Descendants that left the group are not killed, but their output is
	// ignored once the deadline plus a short grace period has passed.
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Runner executes shell command lines and captures their standard output.
type Runner struct {
	opts Options
	log  *slog.Logger
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if strings.TrimSpace(opts.Shell) == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Runner{opts: opts, log: logging.WithComponent(opts.Logger, "runner")}
}

// Run executes command and blocks until the process has exited and both of
// its output streams are exhausted.
//
// Every non-blank stdout line is logged at INFO and kept verbatim in
// Result.Stdout; every non-blank stderr line is logged at WARN and dropped.
// A non-zero exit status is reported through Result.ExitCode, not as an
// error. The returned error is non-nil only when the command could not be
// started (ErrLaunch).
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	args := shellArgs(r.opts.Shell, command)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.opts.Dir
	cmd.Env = r.opts.Env
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	result := Result{Command: command}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return result, fmt.Errorf("%w: stderr pipe: %v", ErrLaunch, err)
	}

	result.StartedAt = r.opts.Now()
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("%w %q: %w", ErrLaunch, command, err)
	}

	// One reader per stream: a child blocked writing to a full stderr pipe
	// would otherwise never finish writing stdout.
	var captured strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.drain("stdout", stdout, func(line string) {
			r.log.Info(strings.TrimRight(line, "\r\n"))
			captured.WriteString(line)
		})
	}()
	go func() {
		defer wg.Done()
		r.drain("stderr", stderr, func(line string) {
			r.log.Warn(strings.TrimRight(line, "\r\n"))
		})
	}()
	drained := make(chan struct{})
	go r.closeAfterDeadline(ctx, drained, stdout, stderr)
	wg.Wait()
	close(drained)

	waitErr := cmd.Wait()
	result.Duration = r.opts.Now().Sub(result.StartedAt)
	result.Stdout = captured.String()
	result.ExitCode = exitCode(waitErr)
	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
	}
	return result, nil
}

// closeAfterDeadline closes the read ends of the pipes when ctx is done and
// the streams are still open after pipeGrace, so a descendant that escaped
// the process group cannot hold Run past its deadline.
func (r *Runner) closeAfterDeadline(ctx context.Context, drained <-chan struct{}, pipes ...io.Closer) {
	select {
	case <-drained:
		return
	case <-ctx.Done():
	}
	timer := time.NewTimer(pipeGrace)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		r.log.Warn("output still open after deadline, closing pipes")
		for _, p := range pipes {
			_ = p.Close()
		}
	}
}

// drain reads r line by line until EOF, handing each non-blank line
// (terminator included) to emit.
func (r *Runner) drain(stream string, rd io.Reader, emit func(string)) {
	br := bufio.NewReaderSize(rd, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if strings.TrimRight(line, "\r\n") != "" {
			emit(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.log.Warn("read stream failed", slog.String("stream", stream), logging.Error(err))
			}
			return
		}
	}
}

func shellArgs(shell, script string) []string {
	fields := strings.Fields(shell)
	name := fields[0]
	args := append([]string{}, fields[1:]...)

	switch strings.ToLower(filepath.Base(name)) {
	case "cmd", "cmd.exe":
		args = append(args, "/C", script)
	case "pwsh", "powershell", "powershell.exe":
		args = append(args, "-Command", script)
	default:
		args = append(args, "-c", script)
	}
	return append([]string{name}, args...)
}

// MergeEnv overlays maps onto a KEY=VALUE environment. Later overlays win and
// the result is sorted by key.
func MergeEnv(base []string, overlays ...map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overlays)*4)
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx != -1 {
			key := kv[:idx]
			envMap[key] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}
