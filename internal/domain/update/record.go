package update

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// EpochVersion names the record written before any update has completed.
const EpochVersion = "epoch"

// Record describes the last fully installed release.
type Record struct {
	Version  string    `json:"version"`
	UpdateAt time.Time `json:"update_at"`
	URL      string    `json:"url"`
	// Digest is the BLAKE3 hex digest of the installed binary. It is
	// informational and never checked against the feed.
	Digest string `json:"digest,omitempty"`
}

// EpochRecord is the record assumed when none exists yet.
func EpochRecord() Record {
	return Record{
		Version:  EpochVersion,
		UpdateAt: time.Unix(0, 0).UTC(),
	}
}

// RecordStore persists the release record as a JSON file.
type RecordStore struct {
	path string
	mu   sync.Mutex
}

// NewRecordStore creates a store backed by path.
func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Path returns the backing file path.
func (s *RecordStore) Path() string { return s.path }

// Load reads the record, writing the epoch record first when the file is
// missing.
func (s *RecordStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		rec := EpochRecord()
		if err := s.write(rec); err != nil {
			return Record{}, err
		}
		return rec, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading release record: %w", err)
	}

	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing release record %s: %w", s.path, err)
	}
	return rec, nil
}

// Save atomically replaces the record.
func (s *RecordStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(rec)
}

func (s *RecordStore) write(rec Record) error {
	data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling release record: %w", err)
	}
	data = append(data, '\n')

	tmp, err := createTemp(s.path)
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		discard(tmp)
		return fmt.Errorf("writing release record: %w", err)
	}
	return commit(tmp, s.path, 0o644)
}
