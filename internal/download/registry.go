package download

import (
	"errors"
	"sync"

	"github.com/surge-downloader/trickle/internal/engine/transfer"
)

// ErrDuplicateTask is returned when a URL already has a transfer in flight.
var ErrDuplicateTask = errors.New("a transfer for this URL is already in progress")

// Registry maps a source URL to its in-flight task.
// Entries are added before a task starts and removed once it terminates.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*transfer.Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*transfer.Task)}
}

// Register adds task under url. A URL that is already registered is rejected
// with ErrDuplicateTask and the existing task is left untouched.
func (r *Registry) Register(url string, task *transfer.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[url]; exists {
		return ErrDuplicateTask
	}
	r.tasks[url] = task
	return nil
}

// Remove deletes url if it still maps to task.
func (r *Registry) Remove(url string, task *transfer.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.tasks[url]; ok && current == task {
		delete(r.tasks, url)
		return true
	}
	return false
}

// Get returns the task registered for url.
func (r *Registry) Get(url string) (*transfer.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[url]
	return task, ok
}

// FindByID returns the task whose download ID is id.
func (r *Registry) FindByID(id string) (*transfer.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, task := range r.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return nil, false
}

// Len returns the number of in-flight tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// List returns a snapshot of the registered tasks.
func (r *Registry) List() []*transfer.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*transfer.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	return out
}

// CancelAll requests cancellation of every registered task and returns how
// many accepted it.
func (r *Registry) CancelAll() int {
	n := 0
	for _, task := range r.List() {
		if task.Cancel() {
			n++
		}
	}
	return n
}
