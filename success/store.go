package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// SuccessRecord is kept for every slide the pipeline published.
type SuccessRecord struct {
	OutputID     string    `json:"output_id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	PublicPath   string    `json:"public_path"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store is a pebble database of SuccessRecords keyed by output id.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the success store at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open success store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the success store
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record stores a completed conversion; the timestamp is set if zero.
func (s *Store) Record(rec SuccessRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("success store not initialized")
	}
	if rec.OutputID == "" {
		return fmt.Errorf("success record without output id")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return s.db.Set([]byte(rec.OutputID), data, pebble.Sync)
}

// Get returns the record for outputID, or nil if there is none.
func (s *Store) Get(outputID string) (*SuccessRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := s.db.Get([]byte(outputID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// Delete removes a success record
func (s *Store) Delete(outputID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return s.db.Delete([]byte(outputID), pebble.Sync)
}

// List returns all success records in key order
func (s *Store) List() ([]SuccessRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	records := []SuccessRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return records, nil
}

// CleanupOldRecords removes records older than maxAge and returns how many went.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
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

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit success cleanup: %w", err)
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the success database
func (s *Store) CheckHealth() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("success database not initialized")
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
