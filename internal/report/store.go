package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/singleronbio/scopetools/internal/logging"
	"github.com/singleronbio/scopetools/internal/stats"
)

var (
	// ErrDocumentCorrupt reports an existing document that cannot be parsed.
	ErrDocumentCorrupt = errors.New("report document corrupt")
	// ErrImageNotFound reports an image file referenced by a merge that does not exist.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidSection reports an empty section name or an invalid plot payload.
	ErrInvalidSection = errors.New("invalid section")
)

// FileName is the document name inside a sample directory.
const FileName = ".data.json"

// MergeOption adds optional payloads to a merge.
type MergeOption func(*mergeOptions)

type mergeOptions struct {
	plot   json.RawMessage
	images map[string]string
}

// WithPlot stores plot under the section's plot key.
func WithPlot(plot json.RawMessage) MergeOption {
	return func(o *mergeOptions) { o.plot = plot }
}

// WithImages embeds the files at the given paths, keyed by image name, under
// the section's image key.
func WithImages(images map[string]string) MergeOption {
	return func(o *mergeOptions) { o.images = images }
}

// Store reads and rewrites report documents.
//
// Merges against the same path must not run concurrently. Stages of one
// sample are expected to run in sequence; Store takes no lock.
type Store struct {
	log *slog.Logger
}

// NewStore returns a store logging through logger (nil discards).
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{log: logging.WithComponent(logger, "report")}
}

// Load reads the document at path. A missing file yields an empty document.
func (s *Store) Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("read report document %q: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", ErrDocumentCorrupt, path, err)
	}
	return doc, nil
}

// Merge stores block under "<section>_summary" in the document at path,
// plus the plot and images when given, and rewrites the document.
// Sections of other stages are left untouched. On any error the file on
// disk is unchanged.
func (s *Store) Merge(path, section string, block stats.Block, opts ...MergeOption) error {
	if section == "" {
		return fmt.Errorf("%w: empty section name", ErrInvalidSection)
	}
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.plot != nil && !json.Valid(o.plot) {
		return fmt.Errorf("%w: plot for %q is not valid JSON", ErrInvalidSection, section)
	}

	doc, err := s.Load(path)
	if err != nil {
		return err
	}

	// Read every image before touching the document.
	var images map[string]string
	if len(o.images) > 0 {
		images, err = encodeImages(o.images)
		if err != nil {
			return fmt.Errorf("merge %s: %w", section, err)
		}
	}

	doc.SetSummary(section, block)
	if o.plot != nil {
		doc.SetPlot(section, o.plot)
	}
	if images != nil {
		doc.SetImages(section, images)
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode report document: %w", err)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write report document %q: %w", path, err)
	}
	s.log.Info("report section merged",
		logging.Section(section),
		logging.Path(path),
		slog.Int("visible", block.Visible.Len()),
		slog.Int("sections", doc.Len()))
	return nil
}

func encodeImages(paths map[string]string) (map[string]string, error) {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(paths))
	for _, name := range names {
		data, err := os.ReadFile(paths[name])
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s (%s)", ErrImageNotFound, name, paths[name])
			}
			return nil, fmt.Errorf("read image %s: %w", name, err)
		}
		out[name] = base64.StdEncoding.EncodeToString(data)
	}
	return out, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
