// Package stage runs one pipeline stage: execute the wrapped tool, extract
// its statistics, merge them into the sample's report document and render
// the stage report.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"

	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/metrics"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/pipeline"
	"github.com/singleronbio/scopetools/internal/report"
	"github.com/singleronbio/scopetools/internal/runner"
	"github.com/singleronbio/scopetools/internal/stats"
	"github.com/singleronbio/scopetools/internal/version"
)

// Stage describes one run of a wrapped tool. Command, Plot and Images may
// hold ${SAMPLE}, ${OUTDIR}, ${SAMPLE_DIR} and ${STAGE_DIR} placeholders.
type Stage struct {
	Index   int
	Name    string
	Command string
	// Rule extracts statistics from stdout; nil stores an empty block.
	Rule stats.Rule
	// Plot is a JSON file stored as the stage's plot section.
	Plot string
	// Images maps image names to files embedded in the document.
	Images map[string]string
	// VersionCommand prints the tool version, e.g. "cutadapt --version".
	VersionCommand string
	Env            map[string]string
}

// Outcome is what a stage run produced.
type Outcome struct {
	Stage        string
	Dir          string
	Result       runner.Result
	Block        stats.Block
	NoMatch      bool
	Version      *version.Info
	DocumentPath string
	ReportPath   string
}

// Renderer renders a report document to a file.
type Renderer interface {
	Render(doc report.Document, templateName, outputPath string) error
}

// Options configure a Driver.
type Options struct {
	Layout  Layout
	Shell   string
	Timeout time.Duration
	// Env overlays the process environment of every command.
	Env map[string]string
	// EnvFile is a dotenv file loaded beneath Env.
	EnvFile string
	// RequireVersions maps tool names to the expected major.minor version.
	RequireVersions map[string]string
	Template        string

	Parser   *stats.Parser
	Store    *report.Store
	Renderer Renderer
	Journal  journal.Recorder
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Driver runs stages of one sample.
type Driver struct {
	opts Options
	env  map[string]string
	log  *slog.Logger
}

// New validates opts and loads the dotenv file when configured.
func New(opts Options) (*Driver, error) {
	if opts.Layout.Sample == "" {
		return nil, fmt.Errorf("%w: sample is required", ErrInvalidStage)
	}
	if opts.Layout.OutDir == "" {
		opts.Layout.OutDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Parser == nil {
		opts.Parser = stats.NewParser(opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = report.NewStore(opts.Logger)
	}
	if opts.Renderer == nil {
		opts.Renderer = output.NewHTML(output.HTMLOptions{Logger: opts.Logger})
	}
	if opts.Template == "" {
		opts.Template = output.DefaultTemplate
	}
	if opts.Journal == nil {
		opts.Journal = journal.Discard
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	env := make(map[string]string)
	if opts.EnvFile != "" {
		fileEnv, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("read env file %q: %w", opts.EnvFile, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for k, v := range opts.Env {
		env[k] = v
	}

	return &Driver{
		opts: opts,
		env:  env,
		log:  logging.WithComponent(opts.Logger, "stage").With(logging.Sample(opts.Layout.Sample)),
	}, nil
}

// Layout returns the sample layout the driver writes to.
func (d *Driver) Layout() Layout { return d.opts.Layout }

var stageNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Run executes st and records its report.
//
// A tool exiting non-zero yields a *ToolError and leaves the document
// untouched. Output without statistics is not an error: the stage stores an
// empty block and Outcome.NoMatch is set.
func (d *Driver) Run(ctx context.Context, st Stage) (Outcome, error) {
	if !stageNameRegex.MatchString(st.Name) || st.Index < 0 {
		return Outcome{}, fmt.Errorf("%w: name %q index %d", ErrInvalidStage, st.Name, st.Index)
	}
	layout := d.opts.Layout
	stageDir := layout.StageDir(st.Index, st.Name)
	log := d.log.With(logging.Stage(st.Name))
	out := Outcome{
		Stage:        st.Name,
		Dir:          stageDir,
		DocumentPath: layout.DocumentPath(),
		ReportPath:   ReportPath(stageDir),
	}

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return out, fmt.Errorf("create stage dir: %w", err)
	}

	vars := layout.Vars(st.Index, st.Name)
	expand := func(s string) string { return pipeline.Expand(s, vars, st.Env, d.env) }
	command := expand(st.Command)
	if command == "" {
		return out, fmt.Errorf("%w: stage %s has no command", ErrInvalidStage, st.Name)
	}

	if st.VersionCommand != "" {
		out.Version = d.detectVersion(ctx, log, st.Name, expand(st.VersionCommand))
	}

	log.Info("stage started", logging.Command(command))
	run := runner.New(runner.Options{
		Shell:   d.opts.Shell,
		Env:     runner.MergeEnv(os.Environ(), d.env, st.Env, vars),
		Timeout: d.opts.Timeout,
		Logger:  d.opts.Logger.With(logging.Sample(layout.Sample), logging.Stage(st.Name)),
		Now:     d.opts.Now,
	})
	res, err := run.Run(ctx, command)
	out.Result = res
	d.opts.Metrics.ObserveStageDuration(st.Name, res.Duration)
	if err != nil {
		d.record(log, layout, st, res, 0, err)
		d.opts.Metrics.IncStageResult(st.Name, metrics.ResultFatal)
		return out, fmt.Errorf("stage %s: %w", st.Name, err)
	}

	if !res.Success() {
		toolErr := &ToolError{
			Stage:    st.Name,
			Command:  command,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Tail:     res.Tail(20),
		}
		d.record(log, layout, st, res, 0, toolErr)
		d.opts.Metrics.IncStageResult(st.Name, metrics.ResultToolFailed)
		log.Error("tool failed",
			logging.Command(command),
			logging.ExitCode(res.ExitCode),
			slog.Bool("timed_out", res.TimedOut),
			slog.String("stdout_tail", toolErr.Tail))
		return out, toolErr
	}

	if st.Rule != nil {
		block, err := d.opts.Parser.Extract(res.Stdout, st.Rule)
		switch {
		case errors.Is(err, stats.ErrNoMatch):
			out.NoMatch = true
		case err != nil:
			d.record(log, layout, st, res, 0, err)
			d.opts.Metrics.IncStageResult(st.Name, metrics.ResultFatal)
			return out, fmt.Errorf("stage %s: %w", st.Name, err)
		}
		out.Block = block
	}
	if out.Version != nil {
		out.Block.Invisible.Set(out.Version.Name+" version", out.Version.Version)
	}

	if err := d.report(st, &out, expand); err != nil {
		d.record(log, layout, st, res, out.Block.Visible.Len(), err)
		d.opts.Metrics.IncStageResult(st.Name, metrics.ResultFatal)
		return out, fmt.Errorf("stage %s: %w", st.Name, err)
	}

	d.record(log, layout, st, res, out.Block.Visible.Len(), nil)
	d.opts.Metrics.SetStageStatistics(st.Name, out.Block.Visible.Len())
	if out.NoMatch {
		d.opts.Metrics.IncStageResult(st.Name, metrics.ResultNoMatch)
	} else {
		d.opts.Metrics.IncStageResult(st.Name, metrics.ResultSuccess)
	}
	log.Info("stage done",
		logging.DurationMS(res.Duration.Milliseconds()),
		slog.Int("statistics", out.Block.Visible.Len()),
		logging.Path(out.ReportPath))
	return out, nil
}

// report merges the outcome into the document and re-renders the stage report.
func (d *Driver) report(st Stage, out *Outcome, expand func(string) string) error {
	var opts []report.MergeOption
	if st.Plot != "" {
		plotPath := expand(st.Plot)
		plot, err := os.ReadFile(plotPath)
		if err != nil {
			return fmt.Errorf("read plot %q: %w", plotPath, err)
		}
		opts = append(opts, report.WithPlot(json.RawMessage(plot)))
	}
	if len(st.Images) > 0 {
		images := make(map[string]string, len(st.Images))
		for name, path := range st.Images {
			images[name] = expand(path)
		}
		opts = append(opts, report.WithImages(images))
	}

	if err := d.opts.Store.Merge(out.DocumentPath, st.Name, out.Block, opts...); err != nil {
		return err
	}
	doc, err := d.opts.Store.Load(out.DocumentPath)
	if err != nil {
		return err
	}
	return d.opts.Renderer.Render(doc, d.opts.Template, out.ReportPath)
}

func (d *Driver) detectVersion(ctx context.Context, log *slog.Logger, name, command string) *version.Info {
	info, err := version.Detect(ctx, name, command)
	if err != nil {
		if version.Missing(err) {
			log.Warn("version command not found", logging.Command(command))
		} else {
			log.Warn("version detection failed", logging.Command(command), logging.Error(err))
		}
		return nil
	}
	if want, ok := d.opts.RequireVersions[name]; ok && !version.CompareMajorMinor(want, info.Version) {
		log.Warn("tool version differs from required version",
			slog.String("required", want),
			slog.String("found", info.Version))
	}
	log.Debug("tool version detected", slog.String("version", info.Version))
	return &info
}

// record writes a journal entry. Journal failures are logged, not returned.
func (d *Driver) record(log *slog.Logger, layout Layout, st Stage, res runner.Result, statistics int, runErr error) {
	entry := &journal.Entry{
		Sample:      layout.Sample,
		Stage:       st.Name,
		Command:     res.Command,
		ExitCode:    res.ExitCode,
		TimedOut:    res.TimedOut,
		StartedAt:   res.StartedAt,
		DurationMS:  res.Duration.Milliseconds(),
		StdoutBytes: len(res.Stdout),
		Statistics:  statistics,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := d.opts.Journal.Record(entry); err != nil {
		log.Warn("journal record failed", logging.Error(err))
	}
}

// FromPipeline converts a pipeline stage, resolving its rule in rules.
func FromPipeline(ps pipeline.Stage, rules *stats.Registry) (Stage, error) {
	st := Stage{
		Index:          ps.Index,
		Name:           ps.Name,
		Command:        ps.Run,
		Plot:           ps.Plot,
		Images:         ps.Images,
		VersionCommand: ps.Version,
		Env:            ps.Env,
	}
	if ps.Rule != "" {
		rule, err := rules.Lookup(ps.Rule)
		if err != nil {
			return Stage{}, fmt.Errorf("stage %s: %w", ps.Name, err)
		}
		st.Rule = rule
	}
	return st, nil
}
