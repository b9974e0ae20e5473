// Package journal keeps a per-sample history of every command a stage ran.
// Entries are stored in a bbolt database next to the report document.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const runsBucket = "runs"

// FileName is the journal database inside a sample directory.
const FileName = ".runs.db"

// Entry records one executed command.
type Entry struct {
	Seq         uint64    `json:"seq"`
	ID          string    `json:"id"`
	Sample      string    `json:"sample"`
	Stage       string    `json:"stage"`
	Command     string    `json:"command"`
	ExitCode    int       `json:"exit_code"`
	TimedOut    bool      `json:"timed_out,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	StdoutBytes int       `json:"stdout_bytes"`
	Statistics  int       `json:"statistics"`
	Error       string    `json:"error,omitempty"`
}

// Recorder stores entries. *Journal implements it; Discard drops them.
type Recorder interface {
	Record(e *Entry) error
}

// Discard is a Recorder that stores nothing.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(*Entry) error { return nil }

// Journal is an open journal database.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal at path. It fails after one second when
// another process holds the database.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open journal %q: locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal %q: %w", path, err)
	}

	return &Journal{db: db}, nil
}

// Record appends e, assigning its sequence number and, when empty, its ID.
func (j *Journal) Record(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.Seq = seq

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// List returns the most recent limit entries, oldest first. A limit of zero
// or less returns every entry.
func (j *Journal) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode journal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}

// Count returns the number of recorded entries.
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(runsBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
var _ Recorder = (*Journal)(nil)
