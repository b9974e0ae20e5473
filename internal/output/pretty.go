package output

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/pipeline"
	"github.com/singleronbio/scopetools/internal/report"
)

// ProgressRenderer receives stage updates while a pipeline runs.
type ProgressRenderer interface {
	StartStage(dir, command string) error
	CompleteStage(result report.StageResult) error
}

// PrettyRenderer renders execution results in a human-friendly format.
type PrettyRenderer struct {
	out io.Writer
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out}
}

// RenderList renders the stages of a pipeline definition.
func (p *PrettyRenderer) RenderList(def pipeline.Definition) error {
	if _, err := fmt.Fprintf(p.out, "Pipeline %s\n", decorateName(def.Name, def.Path)); err != nil {
		return err
	}
	for _, st := range def.Stages {
		label := st.Dir()
		if st.Rule != "" {
			label += " [" + st.Rule + "]"
		}
		if _, err := fmt.Fprintf(p.out, "  • %s\n", label); err != nil {
			return err
		}
	}
	return nil
}

// StartStage prints the stage being started.
func (p *PrettyRenderer) StartStage(dir, command string) error {
	_, err := fmt.Fprintf(p.out, "▶ %s\n", dir)
	return err
}

// CompleteStage prints one stage outcome line.
func (p *PrettyRenderer) CompleteStage(res report.StageResult) error {
	var buffer bytes.Buffer
	fmt.Fprintf(&buffer, "%s %s (%s)\n", statusGlyph(res.Status), res.Stage, formatDuration(res.Duration))
	switch {
	case res.Status == report.StatusFailed && res.Error != "":
		fmt.Fprintf(&buffer, "    error:\n%s\n", indent(res.Error, "      "))
	case res.NoMatch:
		fmt.Fprintf(&buffer, "    note: no statistics found in tool output\n")
	}
	_, err := buffer.WriteTo(p.out)
	return err
}

// RenderResults shows execution outcomes for stages with a summary.
func (p *PrettyRenderer) RenderResults(results []report.StageResult, summary report.Summary) error {
	for _, res := range results {
		if err := p.CompleteStage(res); err != nil {
			return err
		}
	}
	return p.RenderSummary(summary)
}

// RenderSummary prints the closing summary line of a run.
func (p *PrettyRenderer) RenderSummary(summary report.Summary) error {
	if summary.Document != "" {
		fmt.Fprintf(p.out, "Report document: %s\n", summary.Document)
	}
	_, err := fmt.Fprintf(p.out, "SUMMARY: %d passed, %d failed, %d skipped (%s)\n", summary.Passed, summary.Failed, summary.Skipped, formatDuration(summary.Duration))
	return err
}

// RenderDocument prints every stage of a report document with its visible
// statistics. Hidden statistics, plots and images are only counted.
func (p *PrettyRenderer) RenderDocument(doc report.Document) error {
	stages := doc.Stages()
	if len(stages) == 0 {
		_, err := fmt.Fprintln(p.out, "(empty report)")
		return err
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	for _, stage := range stages {
		fmt.Fprintf(tw, "%s\n", stage)
		if block, ok := doc.Summary(stage); ok {
			for _, e := range block.Visible.Entries() {
				fmt.Fprintf(tw, "  %s\t%v\n", e.Name, e.Value)
			}
			if n := block.Invisible.Len(); n > 0 {
				fmt.Fprintf(tw, "  (%d hidden)\t\n", n)
			}
		}
		if _, ok := doc.Section(report.PlotKey(stage)); ok {
			fmt.Fprintf(tw, "  plot\tyes\n")
		}
		if imgs, ok := doc.Section(report.ImagesKey(stage)); ok {
			fmt.Fprintf(tw, "  images\t%s\n", strings.Join(sortedKeys(imgs.Images), ", "))
		}
	}
	return tw.Flush()
}

// RenderHistory prints journal entries as a table.
func (p *PrettyRenderer) RenderHistory(entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(p.out, "(no runs recorded)")
		return err
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTAGE\tEXIT\tDURATION\tSTDOUT\tCOMMAND")
	for _, e := range entries {
		exit := fmt.Sprint(e.ExitCode)
		if e.TimedOut {
			exit = "timeout"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.Stage,
			exit,
			formatDuration(time.Duration(e.DurationMS)*time.Millisecond),
			e.StdoutBytes,
			truncate(e.Command, 60))
	}
	return tw.Flush()
}

func decorateName(name, path string) string {
	if name == "" || name == path {
		return path
	}
	if path == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, path)
}

func statusGlyph(status string) string {
	switch status {
	case report.StatusPassed:
		return "✓"
	case report.StatusFailed:
		return "✗"
	case report.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}

var _ ProgressRenderer = (*PrettyRenderer)(nil)
