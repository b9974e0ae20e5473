package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeNotesAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), NotesFileName)
	s := NewStore(nil)

	notes, err := s.MergeNotes(path, map[string]string{"cutadapt": "Trims adapters."})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cutadapt": "Trims adapters."}, notes)

	notes, err = s.MergeNotes(path, map[string]string{"star": "Maps reads."})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cutadapt": "Trims adapters.", "star": "Maps reads."}, notes)

	notes, err = s.MergeNotes(path, nil)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	notes, err = s.MergeNotes(path, map[string]string{"cutadapt": "Trims poly(A)."})
	require.NoError(t, err)
	assert.Equal(t, "Trims poly(A).", notes["cutadapt"])
}

func TestMergeNotesWithoutChangesWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), NotesFileName)
	notes, err := NewStore(nil).MergeNotes(path, nil)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.NoFileExists(t, path)
}

func TestLoadNotesCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), NotesFileName)
	require.NoError(t, os.WriteFile(path, []byte("[1,2]"), 0o644))
	_, err := NewStore(nil).LoadNotes(path)
	require.ErrorIs(t, err, ErrDocumentCorrupt)
}
