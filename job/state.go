package job

import "sync"

// JobState represents the mirror state of a published slide
type JobState int

const (
	JobStatePending JobState = iota
	JobStateProcessing
	JobStateCompleted
	JobStateFailed
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateProcessing:
		return "processing"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateTable tracks the last known state per output id. It only covers
// slides seen by this process.
type stateTable struct {
	mu     sync.RWMutex
	states map[string]JobState
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[string]JobState)}
}

func (t *stateTable) set(outputID string, s JobState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[outputID] = s
}

func (t *stateTable) get(outputID string) (JobState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[outputID]
	return s, ok
}
