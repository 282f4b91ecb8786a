package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// MirrorTask asks for a published slide to be copied to the mirror backends.
type MirrorTask struct {
	Key        string    `json:"-"`
	OutputID   string    `json:"output_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

// MirrorQueue is a durable FIFO of MirrorTasks. Keys are
// <zero-padded enqueue nanos>/<output id>, so key order is enqueue order.
type MirrorQueue struct {
	q *DBQueue
}

func OpenMirrorQueue(dataFile string) (*MirrorQueue, error) {
	q, err := OpenQueue(dataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror queue: %w", err)
	}
	return &MirrorQueue{q: q}, nil
}

// Enqueue adds a task for outputID.
func (m *MirrorQueue) Enqueue(outputID string) (MirrorTask, error) {
	task := MirrorTask{OutputID: outputID, EnqueuedAt: time.Now()}
	task.Key = fmt.Sprintf("%020d/%s", task.EnqueuedAt.UnixNano(), outputID)
	return task, m.put(task)
}

// Update rewrites a task in place, e.g. after a failed attempt.
func (m *MirrorQueue) Update(task MirrorTask) error {
	if task.Key == "" {
		return fmt.Errorf("mirror task for %s has no key", task.OutputID)
	}
	return m.put(task)
}

func (m *MirrorQueue) put(task MirrorTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror task: %w", err)
	}
	return m.q.Add(task.Key, data)
}

// Done removes a finished task.
func (m *MirrorQueue) Done(task MirrorTask) error {
	return m.q.Delete(task.Key)
}

// Pending returns all queued tasks, oldest first.
func (m *MirrorQueue) Pending() ([]MirrorTask, error) {
	var tasks []MirrorTask
	err := m.q.Scan(func(key, value []byte) bool {
		var task MirrorTask
		if err := json.Unmarshal(value, &task); err != nil {
			return true // skip corrupt entries
		}
		task.Key = string(key)
		tasks = append(tasks, task)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror queue: %w", err)
	}
	return tasks, nil
}

func (m *MirrorQueue) Close() error {
	return m.q.Close()
}
