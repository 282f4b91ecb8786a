package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// Stage names where in the pipeline a failure happened.
type Stage string

const (
	StageConversion Stage = "conversion"
	StageMirror     Stage = "mirror"
)

// FailureRecord keeps what an operator needs to diagnose or retry a failed
// slide. StagedPath points at the retained upload for conversion failures.
type FailureRecord struct {
	OutputID     string    `json:"output_id"`
	Stage        Stage     `json:"stage"`
	OriginalName string    `json:"original_name,omitempty"`
	StagedPath   string    `json:"staged_path,omitempty"`
	ExitCode     int       `json:"exit_code,omitempty"`
	Error        string    `json:"error"`
	Diagnostic   string    `json:"diagnostic,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store is a pebble database of FailureRecords keyed by stage and output id.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the failure store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the failure store
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func key(stage Stage, outputID string) []byte {
	return []byte(string(stage) + "/" + outputID)
}

// Record stores a failure, replacing any earlier one for the same stage and id.
func (s *Store) Record(rec FailureRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	if rec.OutputID == "" || rec.Stage == "" {
		return fmt.Errorf("failure record needs an output id and a stage")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return s.db.Set(key(rec.Stage, rec.OutputID), data, pebble.Sync)
}

// Get returns every failure recorded for outputID, conversion first.
func (s *Store) Get(outputID string) ([]FailureRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	var records []FailureRecord
	for _, stage := range []Stage{StageConversion, StageMirror} {
		data, closer, err := s.db.Get(key(stage, outputID))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get failure: %w", err)
		}
		var record FailureRecord
		err = json.Unmarshal(data, &record)
		closer.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes all failure records for outputID
func (s *Store) Delete(outputID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, stage := range []Stage{StageConversion, StageMirror} {
		if err := batch.Delete(key(stage, outputID), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// List returns all failure records (for admin purposes)
func (s *Store) List() ([]FailureRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	failures := []FailureRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("failure store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			keysToDelete = append(keysToDelete, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, k := range keysToDelete {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old failure record: %w", err)
		}
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the failure database
func (s *Store) CheckHealth() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("failure database not initialized")
	}
	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
