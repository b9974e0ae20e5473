package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singleronbio/scopetools/internal/report"
	"github.com/singleronbio/scopetools/internal/stage"
)

const cutadaptOutput = `This is cutadapt 4.1 with Python 3.9.7
=== Summary ===

Total reads processed:               1,234,567
Reads with adapters:                   234,567 (19.0%)
Total written (filtered):            1,100,000 (89.1%)

=== Adapter 1 ===
`

// workspace creates a working directory with an output dir and a script
// printing a cutadapt summary, and changes into it.
func workspace(t *testing.T) (dir, outdir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir = t.TempDir()
	prevWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })
	outdir = filepath.Join(dir, "out")
	writeFile(t, filepath.Join(dir, "summary.txt"), cutadaptOutput)
	return dir, outdir
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func loadDocument(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestExecRecordsStatistics(t *testing.T) {
	_, outdir := workspace(t)

	code, stdout, stderr := execute(t,
		"exec", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--stage", "trim", "--index", "2", "--rule", "cutadapt",
		"--", "cat summary.txt; echo noise >&2")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "✓ trim")
	assert.Contains(t, stdout, "SUMMARY: 1 passed, 0 failed, 0 skipped")

	doc := loadDocument(t, filepath.Join(outdir, "s1", report.FileName))
	require.Len(t, doc, 1)
	assert.JSONEq(t,
		`{"visible":{"Total reads processed":"1234567","Reads with adapters":"234567 (19.0%)","Total written (filtered)":"1100000 (89.1%)"},"invisible":{}}`,
		string(doc["trim_summary"]))

	html, err := os.ReadFile(filepath.Join(outdir, "s1", "02.trim", "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "1234567")
}

func TestExecToolFailureExitCode(t *testing.T) {
	_, outdir := workspace(t)

	code, _, stderr := execute(t,
		"exec", "--outdir", outdir, "--no-journal",
		"--sample", "s1", "--stage", "broken", "--", "exit 3")
	assert.Equal(t, exitToolFailure, code)
	assert.Contains(t, stderr, "tool failed")
	assert.NoFileExists(t, filepath.Join(outdir, "s1", report.FileName))
}

func TestExecUnknownRuleExitCode(t *testing.T) {
	_, outdir := workspace(t)

	code, _, _ := execute(t,
		"exec", "--outdir", outdir, "--sample", "s1", "--stage", "x", "--rule", "nope", "--", "true")
	assert.Equal(t, exitFailure, code)
}

func TestExecJSONOutput(t *testing.T) {
	_, outdir := workspace(t)

	code, stdout, _ := execute(t,
		"exec", "--outdir", outdir, "--format", "json",
		"--sample", "s1", "--stage", "quiet", "--rule", "cutadapt", "--", "echo nothing to see")
	require.Equal(t, 0, code)

	var run struct {
		Stages  []report.StageResult `json:"stages"`
		Summary report.Summary       `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &run), "stdout: %s", stdout)
	require.Len(t, run.Stages, 1)
	assert.True(t, run.Stages[0].NoMatch)
	assert.Equal(t, report.StatusPassed, run.Stages[0].Status)
	assert.Equal(t, 1, run.Summary.Passed)
}

func TestCutadaptBuildsCommand(t *testing.T) {
	dir, outdir := workspace(t)
	bin := filepath.Join(dir, "bin")
	writeFile(t, filepath.Join(bin, "cutadapt"), fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--version" ]; then echo 4.1; exit 0; fi
echo "$@" > %s
cat %s
`, filepath.Join(dir, "args.txt"), filepath.Join(dir, "summary.txt")))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	code, _, stderr := execute(t,
		"cutadapt", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--fq", "reads_2.fq.gz",
		"--adapter", "polyT=A{18}", "--adapter", "p5=AGATCGG", "--thread", "4")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	clean := filepath.Join(outdir, "s1", "02.cutadapt", "s1_clean_2.fq.gz")
	assert.Equal(t,
		"-a A{18} -a AGATCGG -n 2 -j 4 -m 20 --nextseq-trim=20 --overlap 10 -o "+clean+" reads_2.fq.gz",
		strings.TrimSpace(string(args)))

	doc := loadDocument(t, filepath.Join(outdir, "s1", report.FileName))
	var summary struct {
		Visible   map[string]any    `json:"visible"`
		Invisible map[string]string `json:"invisible"`
	}
	require.NoError(t, json.Unmarshal(doc["cutadapt_summary"], &summary))
	assert.Len(t, summary.Visible, 3)
	assert.Equal(t, "4.1", summary.Invisible["cutadapt version"])
}

func TestCutadaptRejectsAdapter(t *testing.T) {
	_, outdir := workspace(t)
	code, _, _ := execute(t,
		"cutadapt", "--outdir", outdir, "--sample", "s1", "--fq", "r.fq", "--adapter", "polyN=N{5}")
	assert.Equal(t, exitFailure, code)
}

func TestParseAdapter(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "polyT=A{5}T{10}", want: "A{5}T{10}"},
		{in: "p5=AGATCGGAAGAGC", want: "AGATCGGAAGAGC"},
		{in: "A{18}", want: "A{18}"},
		{in: "poly=a{18}", want: "a{18}"},
		{in: "agatcagatc", want: "agatcagatc"},
		{in: "N{18}", wantErr: true},
		{in: "A{x}", wantErr: true},
		{in: "p5=", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseAdapter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

const twoStagePipeline = `name: demo
env:
  GREETING: hello
stages:
  - name: trim
    run: cat summary.txt
    rule: cutadapt
    description: Trimming **reads**.
  - name: count
    run: echo ${GREETING} ${SAMPLE} > ${STAGE_DIR}/greeting.txt
`

func TestPipelineRunsStagesInOrder(t *testing.T) {
	dir, outdir := workspace(t)
	writeFile(t, filepath.Join(dir, "pipelines", "demo.yml"), twoStagePipeline)

	code, stdout, stderr := execute(t,
		"pipeline", "--outdir", outdir, "--log-level", "error", "--sample", "s1", "--set", "GREETING=hi")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "SUMMARY: 2 passed, 0 failed, 0 skipped")
	assert.Contains(t, stderr, "no rule")

	greeting, err := os.ReadFile(filepath.Join(outdir, "s1", "02.count", "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi s1\n", string(greeting))

	doc := loadDocument(t, filepath.Join(outdir, "s1", report.FileName))
	assert.Contains(t, doc, "trim_summary")
	assert.Contains(t, doc, "count_summary")

	html, err := os.ReadFile(filepath.Join(outdir, "s1", "01.trim", "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<strong>reads</strong>")
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	dir, outdir := workspace(t)
	writeFile(t, filepath.Join(dir, "failing.yml"), `stages:
  - name: first
    run: exit 2
  - name: second
    run: echo unreachable
`)

	code, stdout, _ := execute(t,
		"pipeline", "--outdir", outdir, "--format", "json", "--log-level", "error",
		"--sample", "s1", "--file", "failing.yml")
	assert.Equal(t, exitToolFailure, code)

	var run struct {
		Stages  []report.StageResult `json:"stages"`
		Summary report.Summary       `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &run), "stdout: %s", stdout)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, report.StatusFailed, run.Stages[0].Status)
	assert.Equal(t, 2, run.Stages[0].ExitCode)
	assert.Equal(t, report.StatusSkipped, run.Stages[1].Status)
	assert.Equal(t, exitToolFailure, run.Summary.ExitCode)
	assert.NoDirExists(t, filepath.Join(outdir, "s1", "02.second"))
}

func TestPipelineListWithFilters(t *testing.T) {
	dir, _ := workspace(t)
	writeFile(t, filepath.Join(dir, "pipelines", "demo.yml"), twoStagePipeline)

	code, stdout, _ := execute(t, "pipeline", "--list", "--skip-stage", "count")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Pipeline demo (pipelines/demo.yml)")
	assert.Contains(t, stdout, "01.trim [cutadapt]")
	assert.NotContains(t, stdout, "02.count")
}

func TestPipelineMissing(t *testing.T) {
	workspace(t)
	code, _, _ := execute(t, "pipeline", "--sample", "s1")
	assert.Equal(t, exitFailure, code)
}

func TestShowRenderAndHistory(t *testing.T) {
	_, outdir := workspace(t)
	code, _, _ := execute(t,
		"exec", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--stage", "trim", "--rule", "cutadapt", "--", "cat summary.txt")
	require.Equal(t, 0, code)

	code, stdout, _ := execute(t, "show", "--outdir", outdir, "--log-level", "error", "--sample", "s1")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Total reads processed")

	code, stdout, _ = execute(t, "show", "--outdir", outdir, "--log-level", "error")
	require.Equal(t, 0, code)
	assert.Equal(t, "s1\n", stdout)

	reportPath := filepath.Join(outdir, "s1", "00.trim", "report.html")
	require.NoError(t, os.Remove(reportPath))
	code, stdout, _ = execute(t, "render", "--outdir", outdir, "--log-level", "error", "--sample", "s1")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, reportPath)
	assert.FileExists(t, reportPath)

	code, stdout, _ = execute(t, "history", "--outdir", outdir, "--format", "json", "--sample", "s1")
	require.Equal(t, 0, code)
	var entries []struct {
		Stage    string `json:"stage"`
		Command  string `json:"command"`
		ExitCode int    `json:"exit_code"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries), "stdout: %s", stdout)
	require.Len(t, entries, 1)
	assert.Equal(t, "trim", entries[0].Stage)
	assert.Equal(t, "cat summary.txt", entries[0].Command)
}

func TestHistoryLimitReportsTotal(t *testing.T) {
	_, outdir := workspace(t)
	for i := 0; i < 2; i++ {
		code, _, _ := execute(t,
			"exec", "--outdir", outdir, "--log-level", "error",
			"--sample", "s1", "--stage", "trim", "--", "true")
		require.Equal(t, 0, code)
	}

	code, stdout, _ := execute(t, "history", "--outdir", outdir, "--log-level", "error", "--sample", "s1", "--limit", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "showing 1 of 2 runs")

	code, stdout, _ = execute(t, "history", "--outdir", outdir, "--log-level", "error", "--sample", "s2")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "(no runs recorded)")
}

func TestNotesSurviveLaterStages(t *testing.T) {
	_, outdir := workspace(t)
	code, _, _ := execute(t,
		"exec", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--stage", "trim", "--index", "1", "--note", "Trims **reads**.", "--", "true")
	require.Equal(t, 0, code)
	code, _, _ = execute(t,
		"exec", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--stage", "count", "--index", "2", "--", "true")
	require.Equal(t, 0, code)

	html, err := os.ReadFile(filepath.Join(outdir, "s1", "02.count", "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<strong>reads</strong>")

	reportPath := filepath.Join(outdir, "s1", "01.trim", "report.html")
	require.NoError(t, os.Remove(reportPath))
	code, _, _ = execute(t, "render", "--outdir", outdir, "--log-level", "error", "--sample", "s1")
	require.Equal(t, 0, code)
	html, err = os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<strong>reads</strong>")
}

func TestRenderMissingTemplate(t *testing.T) {
	_, outdir := workspace(t)
	code, _, _ := execute(t,
		"exec", "--outdir", outdir, "--log-level", "error",
		"--sample", "s1", "--stage", "trim", "--", "true")
	require.Equal(t, 0, code)

	code, _, _ = execute(t,
		"render", "--outdir", outdir, "--log-level", "error", "--sample", "s1", "--template", "nope.html")
	assert.Equal(t, exitFailure, code)
}

func TestConfigCommand(t *testing.T) {
	dir, _ := workspace(t)
	writeFile(t, filepath.Join(dir, ".scopetools.yml"), "shell: /bin/bash\ntimeout: 1h\n")

	code, stdout, _ := execute(t, "config", "--outdir", "/data")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "shell: /bin/bash")
	assert.Contains(t, stdout, "timeout: 1h")
	assert.Contains(t, stdout, "outdir: /data")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitToolFailure, exitCode(fmt.Errorf("wrapped: %w", &stage.ToolError{Stage: "x", ExitCode: 1})))
}
