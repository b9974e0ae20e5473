package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	j, err := Open(path)
	require.NoError(t, err)
	return j, path
}

func TestRecordAssignsSequenceAndID(t *testing.T) {
	j, _ := openTemp(t)
	defer j.Close()

	e := &Entry{Sample: "s1", Stage: "02.cutadapt", Command: "cutadapt --version", StartedAt: time.Now().UTC()}
	require.NoError(t, j.Record(e))
	assert.Equal(t, uint64(1), e.Seq)
	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)

	e2 := &Entry{Stage: "03.star", ID: "fixed"}
	require.NoError(t, j.Record(e2))
	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, "fixed", e2.ID)
}

func TestListReturnsMostRecentOldestFirst(t *testing.T) {
	j, _ := openTemp(t)
	defer j.Close()

	for _, stage := range []string{"01.barcode", "02.cutadapt", "03.star"} {
		require.NoError(t, j.Record(&Entry{Stage: stage}))
	}

	all, err := j.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "01.barcode", all[0].Stage)
	assert.Equal(t, "03.star", all[2].Stage)

	recent, err := j.List(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "02.cutadapt", recent[0].Stage)
	assert.Equal(t, "03.star", recent[1].Stage)

	n, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEntriesSurviveReopen(t *testing.T) {
	j, path := openTemp(t)
	require.NoError(t, j.Record(&Entry{Stage: "02.cutadapt", ExitCode: 255, DurationMS: 42}))
	require.NoError(t, j.Close())

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 255, entries[0].ExitCode)
	assert.Equal(t, int64(42), entries[0].DurationMS)

	require.NoError(t, j.Record(&Entry{Stage: "03.star"}))
	entries, err = j.List(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entries[1].Seq)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Record(&Entry{}))
}
