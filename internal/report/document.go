// Package report persists the per-sample report document that every stage
// merges its statistics, plots and images into.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/singleronbio/scopetools/internal/stats"
)

// Section key suffixes.
const (
	SuffixSummary = "_summary"
	SuffixPlot    = "_plot"
	SuffixImages  = "_img"
)

// Kind identifies the payload held by a section.
type Kind int

const (
	KindSummary Kind = iota + 1
	KindPlot
	KindImages
)

func (k Kind) String() string {
	switch k {
	case KindSummary:
		return "summary"
	case KindPlot:
		return "plot"
	case KindImages:
		return "images"
	default:
		return "unknown"
	}
}

func (k Kind) suffix() string {
	switch k {
	case KindSummary:
		return SuffixSummary
	case KindPlot:
		return SuffixPlot
	case KindImages:
		return SuffixImages
	default:
		return ""
	}
}

// SummaryKey returns the document key of stage's statistics.
func SummaryKey(stage string) string { return stage + SuffixSummary }

// PlotKey returns the document key of stage's plot payload.
func PlotKey(stage string) string { return stage + SuffixPlot }

// ImagesKey returns the document key of stage's images.
func ImagesKey(stage string) string { return stage + SuffixImages }

// ParseKey splits a document key into its stage name and kind.
func ParseKey(key string) (string, Kind, bool) {
	for _, kind := range []Kind{KindSummary, KindPlot, KindImages} {
		if stage, ok := strings.CutSuffix(key, kind.suffix()); ok && stage != "" {
			return stage, kind, true
		}
	}
	return "", 0, false
}

// Section is one keyed entry of the document. Exactly one payload is set,
// according to Kind.
type Section struct {
	Kind    Kind
	Summary stats.Block
	Plot    json.RawMessage
	Images  map[string]string
}

// Document maps section keys to sections. The zero value is an empty document.
type Document struct {
	sections map[string]Section
}

// Len returns the number of sections.
func (d Document) Len() int { return len(d.sections) }

// Keys returns the section keys sorted.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d.sections))
	for k := range d.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Section returns the section stored under key.
func (d Document) Section(key string) (Section, bool) {
	s, ok := d.sections[key]
	return s, ok
}

// Summary returns the statistics of stage.
func (d Document) Summary(stage string) (stats.Block, bool) {
	s, ok := d.sections[SummaryKey(stage)]
	if !ok {
		return stats.Block{}, false
	}
	return s.Summary, true
}

// Stages returns the distinct stage names present in the document, sorted.
func (d Document) Stages() []string {
	seen := make(map[string]struct{})
	for key := range d.sections {
		if stage, _, ok := ParseKey(key); ok {
			seen[stage] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for stage := range seen {
		out = append(out, stage)
	}
	sort.Strings(out)
	return out
}

func (d *Document) set(key string, s Section) {
	if d.sections == nil {
		d.sections = make(map[string]Section)
	}
	d.sections[key] = s
}

// SetSummary stores the statistics of stage, replacing any previous ones.
func (d *Document) SetSummary(stage string, block stats.Block) {
	d.set(SummaryKey(stage), Section{Kind: KindSummary, Summary: block})
}

// SetPlot stores the plot payload of stage.
func (d *Document) SetPlot(stage string, plot json.RawMessage) {
	d.set(PlotKey(stage), Section{Kind: KindPlot, Plot: append(json.RawMessage(nil), plot...)})
}

// SetImages stores base64 encoded images of stage keyed by image name.
func (d *Document) SetImages(stage string, images map[string]string) {
	cp := make(map[string]string, len(images))
	for k, v := range images {
		cp[k] = v
	}
	d.set(ImagesKey(stage), Section{Kind: KindImages, Images: cp})
}

// Data exposes the document to templates: every section key maps to its
// payload (stats.Block, decoded plot JSON, or map of image name to base64).
func (d Document) Data() map[string]any {
	data := make(map[string]any, len(d.sections))
	for key, s := range d.sections {
		switch s.Kind {
		case KindSummary:
			data[key] = s.Summary
		case KindPlot:
			var v any
			if err := json.Unmarshal(s.Plot, &v); err == nil {
				data[key] = v
			}
		case KindImages:
			data[key] = s.Images
		}
	}
	return data
}

// MarshalJSON encodes the document with keys sorted.
func (d Document) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(d.sections))
	for key, s := range d.sections {
		switch s.Kind {
		case KindSummary:
			raw[key] = s.Summary
		case KindPlot:
			raw[key] = s.Plot
		case KindImages:
			raw[key] = s.Images
		default:
			return nil, fmt.Errorf("section %q has no kind", key)
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes and validates a document. Keys without a known
// suffix, or payloads whose shape does not match the suffix, are rejected.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document must be a JSON object")
	}
	doc := Document{sections: make(map[string]Section, len(raw))}
	for key, payload := range raw {
		_, kind, ok := ParseKey(key)
		if !ok {
			return fmt.Errorf("section %q: unrecognized key", key)
		}
		s := Section{Kind: kind}
		switch kind {
		case KindSummary:
			if err := decodeSummary(payload, &s.Summary); err != nil {
				return fmt.Errorf("section %q: %w", key, err)
			}
		case KindPlot:
			s.Plot = append(json.RawMessage(nil), payload...)
		case KindImages:
			if err := json.Unmarshal(payload, &s.Images); err != nil {
				return fmt.Errorf("section %q: %w", key, err)
			}
			if s.Images == nil {
				return fmt.Errorf("section %q: images must be an object", key)
			}
		}
		doc.sections[key] = s
	}
	*d = doc
	return nil
}

// decodeSummary requires the visible table; the invisible one may be absent.
func decodeSummary(payload json.RawMessage, block *stats.Block) error {
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		return err
	}
	visible, ok := parts["visible"]
	if !ok {
		return fmt.Errorf("summary has no visible table")
	}
	if err := json.Unmarshal(visible, &block.Visible); err != nil {
		return err
	}
	if invisible, ok := parts["invisible"]; ok {
		if err := json.Unmarshal(invisible, &block.Invisible); err != nil {
			return err
		}
	}
	return nil
}
