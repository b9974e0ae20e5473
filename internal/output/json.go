package output

import (
	"encoding/json"
	"io"

	"github.com/singleronbio/scopetools/internal/journal"
	"github.com/singleronbio/scopetools/internal/report"
)

// JSONRenderer emits structured execution data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// RunReport captures the JSON output schema of a stage or pipeline run.
type RunReport struct {
	Pipeline string               `json:"pipeline,omitempty"`
	Stages   []report.StageResult `json:"stages"`
	Summary  report.Summary       `json:"summary"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Render encodes the run report as JSON.
func (j *JSONRenderer) Render(run RunReport) error {
	return j.encode(run)
}

// RenderDocument encodes the report document as stored on disk.
func (j *JSONRenderer) RenderDocument(doc report.Document) error {
	return j.encode(doc)
}

// RenderHistory encodes journal entries.
func (j *JSONRenderer) RenderHistory(entries []journal.Entry) error {
	if entries == nil {
		entries = []journal.Entry{}
	}
	return j.encode(entries)
}

// Encode writes any value in the renderer's JSON style.
func (j *JSONRenderer) Encode(v any) error {
	return j.encode(v)
}

func (j *JSONRenderer) encode(v any) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
