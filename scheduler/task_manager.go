package scheduler

import (
	"context"
	"sync"
	"time"

	"pricewatch/models"

	"go.uber.org/zap"
)

const (
	cleanupInterval = time.Minute
	taskRetention   = time.Hour
)

// ItemLookup resolves the items a manual refresh targets
type ItemLookup interface {
	ItemSource
	Get(id string) (models.MonitoredItem, error)
}

type managedTask struct {
	task   *models.RefreshTask
	cancel context.CancelFunc
}

// TaskManager runs user-initiated refresh tasks in the background
type TaskManager struct {
	tasks      map[string]*managedTask
	slots      chan struct{}
	maxWorkers int
	runner     CycleRunner
	items      ItemLookup
	ctx        context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
	mutex      sync.RWMutex
	logger     *zap.Logger
}

// NewTaskManager creates a task manager running at most maxWorkers tasks at
// once; the rest wait in the queued state
func NewTaskManager(runner CycleRunner, items ItemLookup, maxWorkers int, logger *zap.Logger) *TaskManager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	tm := &TaskManager{
		tasks:      make(map[string]*managedTask),
		slots:      make(chan struct{}, maxWorkers),
		maxWorkers: maxWorkers,
		runner:     runner,
		items:      items,
		ctx:        ctx,
		stop:       stop,
		logger:     logger,
	}

	tm.wg.Add(1)
	go tm.cleanupLoop()
	logger.Info("Task manager started", zap.Int("max_workers", maxWorkers))
	return tm
}

// Submit queues a refresh of the given items, or of every item when
// itemIDs is empty
func (tm *TaskManager) Submit(itemIDs []string) (*models.RefreshTask, error) {
	for _, id := range itemIDs {
		if _, err := tm.items.Get(id); err != nil {
			return nil, err
		}
	}

	task := models.NewRefreshTask(itemIDs)
	ctx, cancel := context.WithCancel(tm.ctx)

	tm.mutex.Lock()
	tm.tasks[task.ID()] = &managedTask{task: task, cancel: cancel}
	tm.mutex.Unlock()

	tm.wg.Add(1)
	go tm.worker(ctx, cancel, task)
	tm.logger.Info("Refresh task submitted", zap.String("task_id", task.ID()), zap.Int("items", len(itemIDs)))
	return task, nil
}

// worker waits for a free slot and runs one task
func (tm *TaskManager) worker(ctx context.Context, cancel context.CancelFunc, task *models.RefreshTask) {
	defer tm.wg.Done()
	defer cancel()

	select {
	case tm.slots <- struct{}{}:
		defer func() { <-tm.slots }()
	case <-ctx.Done():
		task.Finish(models.RunResult{Trigger: models.TriggerManual, Status: models.RunCancelledPartial})
		tm.logger.Info("Refresh task cancelled before start", zap.String("task_id", task.ID()))
		return
	}

	task.Start()
	items := tm.resolve(task.ItemIDs())
	task.UpdateProgress(0, len(items))

	result := tm.runner.RunCycle(ctx, models.TriggerManual, items, task.UpdateProgress)
	task.Finish(result)
	tm.logger.Info("Refresh task finished",
		zap.String("task_id", task.ID()),
		zap.String("status", string(task.Status())),
		zap.Duration("duration", task.Duration()))
}

func (tm *TaskManager) resolve(ids []string) []models.MonitoredItem {
	if len(ids) == 0 {
		return tm.items.Snapshot()
	}
	items := make([]models.MonitoredItem, 0, len(ids))
	for _, id := range ids {
		// items deleted since submission are skipped
		if item, err := tm.items.Get(id); err == nil {
			items = append(items, item)
		}
	}
	return items
}

// GetTask returns a task by ID
func (tm *TaskManager) GetTask(taskID string) (*models.RefreshTask, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	mt, exists := tm.tasks[taskID]
	if !exists {
		return nil, false
	}
	return mt.task, true
}

// Cancel signals a task to stop after its current item
func (tm *TaskManager) Cancel(taskID string) error {
	tm.mutex.RLock()
	mt, exists := tm.tasks[taskID]
	tm.mutex.RUnlock()
	if !exists {
		return models.ErrTaskNotFound
	}
	mt.cancel()
	return nil
}

// CleanupOldTasks removes finished tasks older than maxAge
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for taskID, mt := range tm.tasks {
		if mt.task.IsCompleted() && mt.task.CreatedAt().Before(cutoff) {
			delete(tm.tasks, taskID)
			removed++
		}
	}
	if removed > 0 {
		tm.logger.Debug("Cleaned up old tasks", zap.Int("removed", removed))
	}
	return removed
}

func (tm *TaskManager) cleanupLoop() {
	defer tm.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tm.CleanupOldTasks(taskRetention)
		case <-tm.ctx.Done():
			return
		}
	}
}

// Stop cancels all tasks and waits for their workers to return
func (tm *TaskManager) Stop() {
	tm.logger.Info("Task manager stopping")
	tm.stop()
	tm.wg.Wait()
}

// GetStats returns task manager statistics
func (tm *TaskManager) GetStats() map[string]interface{} {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	statusCounts := make(map[string]int)
	for _, mt := range tm.tasks {
		statusCounts[string(mt.task.Status())]++
	}
	return map[string]interface{}{
		"total_tasks":     len(tm.tasks),
		"active_workers":  len(tm.slots),
		"max_workers":     tm.maxWorkers,
		"tasks_by_status": statusCounts,
	}
}
