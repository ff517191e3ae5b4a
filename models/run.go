package models

import "time"

// RunStatus is the terminal state of a refresh cycle
type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunCancelledPartial RunStatus = "cancelled_partial"
)

// Trigger identifies what started a cycle
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerPeriodic Trigger = "periodic"
)

// PriceDrop is a refresh outcome where the new price is below the previous one
type PriceDrop struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	OldPrice float64 `json:"old_price"`
	NewPrice float64 `json:"new_price"`
}

// ItemFailure records why an item could not be refreshed
type ItemFailure struct {
	ItemID  string    `json:"item_id"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// RunResult summarizes one refresh cycle
type RunResult struct {
	Trigger    Trigger       `json:"trigger"`
	Status     RunStatus     `json:"status"`
	Updated    []string      `json:"updated"`
	Unchanged  []string      `json:"unchanged"`
	Dropped    []PriceDrop   `json:"dropped"`
	Failed     []ItemFailure `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Checked returns how many items were refreshed without error
func (r *RunResult) Checked() int {
	return len(r.Updated) + len(r.Unchanged)
}

// Complete reports whether the cycle visited every planned item
func (r *RunResult) Complete() bool {
	return r.Status == RunCompleted
}
