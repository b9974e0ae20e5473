package stage

import (
	"path/filepath"

	"github.com/singleronbio/scopetools/internal/discovery"
	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/output"
	"github.com/singleronbio/scopetools/internal/report"
)

// Layout resolves the on-disk paths of one sample.
//
//	<outdir>/<sample>/.data.json
//	<outdir>/<sample>/.notes.json
//	<outdir>/<sample>/.runs.db
//	<outdir>/<sample>/<NN.stage>/report.html
type Layout struct {
	OutDir string
	Sample string
}

// SampleDir returns <outdir>/<sample>.
func (l Layout) SampleDir() string { return filepath.Join(l.OutDir, l.Sample) }

// StageDir returns <outdir>/<sample>/<NN.name>.
func (l Layout) StageDir(index int, name string) string {
	return filepath.Join(l.SampleDir(), discovery.StageDirName(index, name))
}

// DocumentPath returns the sample's report document.
func (l Layout) DocumentPath() string { return filepath.Join(l.SampleDir(), report.FileName) }

// NotesPath returns the sample's stored stage notes.
func (l Layout) NotesPath() string { return filepath.Join(l.SampleDir(), report.NotesFileName) }

// JournalPath returns the sample's journal database.
func (l Layout) JournalPath() string { return filepath.Join(l.SampleDir(), journal.FileName) }

// ReportPath returns the rendered report of a stage directory.
func ReportPath(stageDir string) string { return filepath.Join(stageDir, output.ReportFileName) }

// Vars returns the placeholders available to stage commands.
func (l Layout) Vars(index int, name string) map[string]string {
	return map[string]string{
		"SAMPLE":     l.Sample,
		"OUTDIR":     l.OutDir,
		"SAMPLE_DIR": l.SampleDir(),
		"STAGE_DIR":  l.StageDir(index, name),
	}
}
