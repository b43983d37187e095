package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskInfo describes one background compression or indexing task.
type TaskInfo struct {
	TaskID      string         `json:"task_id"`
	Path        string         `json:"path"`
	Operation   string         `json:"operation"`
	Status      TaskStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// TaskManager tracks background tasks and holds a per-path lock so the
// same file is never compressed or indexed twice concurrently.
type TaskManager struct {
	mu        sync.Mutex
	tasks     map[string]*TaskInfo
	pathLocks map[string]string // normalized path -> task id
}

// NewTaskManager creates an empty manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks:     make(map[string]*TaskInfo),
		pathLocks: make(map[string]string),
	}
}

// Create registers a task for path unless one is already queued or
// running there; in that case the existing task is returned with
// isNew=false.
func (m *TaskManager) Create(path, operation string) (TaskInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.pathLocks[path]; ok {
		if existing, ok := m.tasks[existingID]; ok &&
			(existing.Status == TaskQueued || existing.Status == TaskRunning) {
			return *existing, false
		}
	}

	task := &TaskInfo{
		TaskID:    uuid.NewString(),
		Path:      path,
		Operation: operation,
		Status:    TaskQueued,
		StartedAt: time.Now().UTC(),
	}
	m.tasks[task.TaskID] = task
	m.pathLocks[path] = task.TaskID
	return *task, true
}

// SetRunning marks the task as started.
func (m *TaskManager) SetRunning(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		task.Status = TaskRunning
	}
}

// Finish marks a task completed or failed and releases its path lock.
func (m *TaskManager) Finish(taskID string, result map[string]any, taskErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.Result = result
	if taskErr != nil {
		task.Status = TaskFailed
		task.Error = taskErr.Error()
	} else {
		task.Status = TaskCompleted
	}

	if lockedBy, ok := m.pathLocks[task.Path]; ok && lockedBy == taskID {
		delete(m.pathLocks, task.Path)
	}
}

// Get returns a copy of the task, or nil.
func (m *TaskManager) Get(taskID string) *TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	cp := *task
	return &cp
}

// All returns copies of every tracked task.
func (m *TaskManager) All() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskInfo, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, *task)
	}
	return out
}

// CleanupOld drops terminal tasks older than maxAge. Returns the number
// removed.
func (m *TaskManager) CleanupOld(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, task := range m.tasks {
		if task.Status != TaskCompleted && task.Status != TaskFailed {
			continue
		}
		if task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
