package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/singleronbio/scopetools/internal/config"
	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/metrics"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/report"
	"github.com/singleronbio/scopetools/internal/stage"
	"github.com/singleronbio/scopetools/internal/stats"
)

// app is the effective configuration of one invocation.
type app struct {
	cfg   config.Config
	root  string
	log   *slog.Logger
	rules *stats.Registry
}

func loadApp(cmd *cobra.Command) (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}

	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("parse --config: %w", err)
	}
	cfg, err := config.Load(root, explicit)
	if err != nil {
		return nil, err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return nil, err
	}
	config.ApplyFlags(&cfg, flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// JSON output owns stdout, so every log record goes to stderr.
	var low io.Writer = cmd.OutOrStdout()
	if cfg.JSON() {
		low = cmd.ErrOrStderr()
	}
	logger := logging.New(low, cmd.ErrOrStderr(), logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rules, err := stats.FromConfig(cfg.Rules)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, root: root, log: logger, rules: rules}, nil
}

func (a *app) layout(sample string) stage.Layout {
	return stage.Layout{OutDir: a.cfg.OutDir, Sample: sample}
}

// session owns the per-sample resources of a stage run.
type session struct {
	driver  *stage.Driver
	journal *journal.Journal
	metrics *metrics.PrometheusRecorder
	path    string
	log     *slog.Logger
}

func (a *app) openSession(sample string, notes map[string]string) (*session, error) {
	if strings.TrimSpace(sample) == "" {
		return nil, errors.New("--sample is required")
	}
	layout := a.layout(sample)
	if err := os.MkdirAll(layout.SampleDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create sample dir: %w", err)
	}
	timeout, err := a.cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	// Notes of earlier invocations stay visible in every re-rendered report.
	notes, err = report.NewStore(a.log).MergeNotes(layout.NotesPath(), notes)
	if err != nil {
		return nil, err
	}

	s := &session{path: a.cfg.MetricsFile, log: a.log}
	opts := stage.Options{
		Layout:          layout,
		Shell:           a.cfg.Shell,
		Timeout:         timeout,
		Env:             a.cfg.Env,
		EnvFile:         a.cfg.EnvFile,
		RequireVersions: a.cfg.RequireVersions,
		Renderer: output.NewHTML(output.HTMLOptions{
			TemplatesDir: a.cfg.TemplatesDir,
			Title:        sample,
			Notes:        notes,
			Logger:       a.log,
		}),
		Logger: a.log,
	}
	if a.cfg.Journal {
		j, err := journal.Open(layout.JournalPath())
		if err != nil {
			return nil, err
		}
		s.journal = j
		opts.Journal = j
	}
	if a.cfg.MetricsFile != "" {
		s.metrics = metrics.NewPrometheusRecorder()
		opts.Metrics = s.metrics
	}

	driver, err := stage.New(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.driver = driver
	return s, nil
}

// Close flushes metrics and releases the journal.
func (s *session) Close() error {
	var errs []error
	if s.metrics != nil {
		if err := s.metrics.WriteTextfile(s.path); err != nil {
			errs = append(errs, err)
		} else {
			s.log.Debug("metrics written", logging.Path(s.path))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runStages runs stages in order, stops at the first failure and marks the
// remaining stages skipped. The returned error is that of the failed stage.
func (a *app) runStages(cmd *cobra.Command, sess *session, pipelineName string, stages []stage.Stage, warnings []string) error {
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			a.log.Warn("close session", logging.Error(closeErr))
		}
	}()

	layout := sess.driver.Layout()
	pretty := output.NewPretty(cmd.OutOrStdout())
	var progress output.ProgressRenderer = pretty
	if a.cfg.JSON() {
		progress = nil
	}

	started := time.Now()
	results := make([]report.StageResult, 0, len(stages))
	var runErr error
	for _, st := range stages {
		dir := layout.StageDir(st.Index, st.Name)
		if runErr != nil {
			results = append(results, report.StageResult{
				Sample: layout.Sample,
				Stage:  st.Name,
				Dir:    dir,
				Status: report.StatusSkipped,
			})
			continue
		}
		if progress != nil {
			if err := progress.StartStage(dir, st.Command); err != nil {
				return err
			}
		}
		out, stageErr := sess.driver.Run(cmd.Context(), st)
		res := stageResult(layout.Sample, st, out, stageErr)
		results = append(results, res)
		if progress != nil {
			if err := progress.CompleteStage(res); err != nil {
				return err
			}
		}
		runErr = stageErr
	}

	summary := report.Summarize(layout.Sample, layout.DocumentPath(), results, time.Since(started), exitCode(runErr))
	if a.cfg.JSON() {
		run := output.RunReport{
			Pipeline: pipelineName,
			Stages:   results,
			Summary:  summary,
			Warnings: warnings,
		}
		if err := output.NewJSON(cmd.OutOrStdout()).Render(run); err != nil {
			return err
		}
	} else {
		if err := pretty.RenderSummary(summary); err != nil {
			return err
		}
		for _, msg := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
		}
	}
	return runErr
}

func stageResult(sample string, st stage.Stage, out stage.Outcome, err error) report.StageResult {
	res := report.StageResult{
		Sample:     sample,
		Stage:      st.Name,
		Dir:        out.Dir,
		Command:    out.Result.Command,
		Status:     report.StatusPassed,
		Duration:   out.Result.Duration,
		DurationMS: out.Result.Duration.Milliseconds(),
		ExitCode:   out.Result.ExitCode,
		Statistics: out.Block.Visible.Len(),
		NoMatch:    out.NoMatch,
	}
	if res.Command == "" {
		res.Command = st.Command
	}
	if err != nil {
		res.Status = report.StatusFailed
		res.Error = err.Error()
	}
	return res
}
