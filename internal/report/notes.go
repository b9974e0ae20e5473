package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
)

// NotesFileName holds the Markdown stage descriptions of a sample, next to
// the document, so every rendered report can show the notes of all stages.
const NotesFileName = ".notes.json"

// LoadNotes reads the stage notes at path keyed by stage name. A missing
// file yields no notes.
func (s *Store) LoadNotes(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read stage notes %q: %w", path, err)
	}
	notes := map[string]string{}
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentCorrupt, path, err)
	}
	return notes, nil
}

// MergeNotes overlays notes onto those stored at path and returns the
// result. The file is rewritten only when a note changed.
func (s *Store) MergeNotes(path string, notes map[string]string) (map[string]string, error) {
	stored, err := s.LoadNotes(path)
	if err != nil {
		return nil, err
	}
	merged := maps.Clone(stored)
	maps.Copy(merged, notes)
	if maps.Equal(stored, merged) {
		return merged, nil
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode stage notes: %w", err)
	}
	if err := WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write stage notes %q: %w", path, err)
	}
	return merged, nil
}
