package rbs

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// task states
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task is one background prediction or design run, pollable by ID
type Task struct {
	ID       string
	Type     string
	Status   string
	Progress float64
	Message  string

	// Result is set only on completion
	Result interface{}

	// Error is the caller-safe failure message; ErrorDetail carries
	// internals and is exposed only in debug mode
	Error       string
	ErrorDetail string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// View is the poll response for a task. Result appears only once the
// task completed; error detail only once it failed and the server runs
// in debug mode
func (t *Task) View(debug bool) map[string]interface{} {
	view := map[string]interface{}{
		"ok":         true,
		"id":         t.ID,
		"type":       t.Type,
		"status":     t.Status,
		"progress":   t.Progress,
		"message":    t.Message,
		"error":      nil,
		"created_at": float64(t.CreatedAt.UnixMilli()) / 1000,
		"updated_at": float64(t.UpdatedAt.UnixMilli()) / 1000,
	}
	if t.Error != "" {
		view["error"] = t.Error
	}
	if t.Status == TaskCompleted {
		view["result"] = t.Result
	}
	if t.Status == TaskFailed && debug && t.ErrorDetail != "" {
		view["error_detail"] = t.ErrorDetail
	}
	return view
}

// TaskRegistry holds in-flight and recently finished tasks. Finished
// tasks stay pollable until the TTL sweep removes them
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	ttl   time.Duration

	// test hook
	now func() time.Time
}

// NewTaskRegistry returns a registry sweeping tasks older than ttl
func NewTaskRegistry(ttl time.Duration) *TaskRegistry {
	return &TaskRegistry{
		tasks: map[string]*Task{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create registers a queued task and returns its ID
func (r *TaskRegistry) Create(taskType string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	now := r.now()

	r.mu.Lock()
	r.tasks[id] = &Task{
		ID:        id,
		Type:      taskType,
		Status:    TaskQueued,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Unlock()

	r.Sweep()
	return id
}

// Get returns a copy of a task
func (r *TaskRegistry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// update mutates a task under the lock and stamps it
func (r *TaskRegistry) update(id string, mutate func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return
	}
	mutate(task)
	task.UpdatedAt = r.now()
}

// SetRunning marks a task as picked up
func (r *TaskRegistry) SetRunning(id string) {
	r.update(id, func(t *Task) {
		t.Status = TaskRunning
		t.Message = "Running"
	})
}

// SetProgress updates a running task's progress and message
func (r *TaskRegistry) SetProgress(id string, progress float64, message string) {
	r.update(id, func(t *Task) {
		t.Progress = clampFloat(progress, 0, 1)
		if message != "" {
			t.Message = message
		}
	})
}

// Finish marks a task completed with its result
func (r *TaskRegistry) Finish(id string, result interface{}) {
	r.update(id, func(t *Task) {
		t.Status = TaskCompleted
		t.Progress = 1
		t.Message = "Completed"
		t.Result = result
	})
}

// Fail marks a task failed. detail is kept for debug-mode polling only
func (r *TaskRegistry) Fail(id, errMsg, detail string) {
	r.update(id, func(t *Task) {
		t.Status = TaskFailed
		t.Progress = 1
		t.Message = "Failed"
		t.Error = errMsg
		t.ErrorDetail = detail
	})
}

// Sweep drops tasks that haven't been touched within the TTL
func (r *TaskRegistry) Sweep() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, task := range r.tasks {
		if task.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
		}
	}
}
