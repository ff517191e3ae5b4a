package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a manual refresh task
type TaskStatus string

const (
	TaskStatusQueued           TaskStatus = "queued"
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusCancelledPartial TaskStatus = "cancelled_partial"
)

// RefreshTask represents a user-initiated refresh of one item or all items.
// It is shared between the worker and HTTP readers, so access goes through
// its methods.
type RefreshTask struct {
	mu          sync.RWMutex
	id          string
	itemIDs     []string
	status      TaskStatus
	done        int
	total       int
	result      *RunResult
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

// TaskSnapshot is a point-in-time copy of a RefreshTask
type TaskSnapshot struct {
	ID          string     `json:"id"`
	ItemIDs     []string   `json:"item_ids,omitempty"`
	Status      TaskStatus `json:"status"`
	Done        int        `json:"done"`
	Total       int        `json:"total"`
	Progress    int        `json:"progress"`
	Result      *RunResult `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRefreshTask creates a queued task. An empty itemIDs means every item.
func NewRefreshTask(itemIDs []string) *RefreshTask {
	return &RefreshTask{
		id:        "task_" + uuid.New().String(),
		itemIDs:   itemIDs,
		status:    TaskStatusQueued,
		createdAt: time.Now(),
	}
}

// ID returns the task id
func (t *RefreshTask) ID() string {
	return t.id
}

// ItemIDs returns the targeted item ids (nil means all)
func (t *RefreshTask) ItemIDs() []string {
	return t.itemIDs
}

// Start marks the task as running
func (t *RefreshTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskStatusRunning
	now := time.Now()
	t.startedAt = &now
}

// UpdateProgress records how many items have been visited
func (t *RefreshTask) UpdateProgress(done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = done
	t.total = total
}

// Finish stores the cycle result and moves to a final state
func (t *RefreshTask) Finish(result RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = &result
	if result.Status == RunCompleted {
		t.status = TaskStatusCompleted
	} else {
		t.status = TaskStatusCancelledPartial
	}
	now := time.Now()
	t.completedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *RefreshTask) IsCompleted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == TaskStatusCompleted || t.status == TaskStatusCancelledPartial
}

// Status returns the current status
func (t *RefreshTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// CreatedAt returns when the task was submitted
func (t *RefreshTask) CreatedAt() time.Time {
	return t.createdAt
}

// Duration returns the duration of the task
func (t *RefreshTask) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startedAt == nil {
		return 0
	}
	end := time.Now()
	if t.completedAt != nil {
		end = *t.completedAt
	}
	return end.Sub(*t.startedAt)
}

// Snapshot returns a copy safe to serialize
func (t *RefreshTask) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	progress := 0
	if t.total > 0 {
		progress = t.done * 100 / t.total
	}
	if t.status == TaskStatusCompleted {
		progress = 100
	}
	return TaskSnapshot{
		ID:          t.id,
		ItemIDs:     t.itemIDs,
		Status:      t.status,
		Done:        t.done,
		Total:       t.total,
		Progress:    progress,
		Result:      t.result,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
	}
}
