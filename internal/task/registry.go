package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olivier-w/zinc/internal/services"
)

// Publisher receives task snapshots and raw progress events for display.
// Delivery is best-effort; a dropped event is superseded by the next snapshot.
type Publisher interface {
	PublishTask(snapshot Task)
	PublishProgress(taskID string, event ProgressEvent)
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) PublishTask(Task) {}

func (NopPublisher) PublishProgress(string, ProgressEvent) {}

// Registry is the in-memory task table. All access runs through short
// critical sections; the lock is never held across blocking work.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	handles   map[string]*Handle
	order     []string
	publisher Publisher
}

// NewRegistry builds an empty registry publishing to pub. A nil pub is
// replaced with a NopPublisher.
func NewRegistry(pub Publisher) *Registry {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Registry{
		tasks:     make(map[string]*Task),
		handles:   make(map[string]*Handle),
		publisher: pub,
	}
}

// Create inserts the task in status pending and returns its cancellation
// handle. An empty ID is assigned a fresh UUID; a duplicate ID is a
// programming error and is rejected.
func (r *Registry) Create(t Task) (Task, *Handle, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = StatusPending
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	handle := NewHandle()

	r.mu.Lock()
	if _, exists := r.tasks[t.ID]; exists {
		r.mu.Unlock()
		return Task{}, nil, services.Wrap(services.ErrIO, "registry", "create",
			"duplicate task id "+t.ID, nil)
	}
	stored := t
	r.tasks[t.ID] = &stored
	r.handles[t.ID] = handle
	r.order = append(r.order, t.ID)
	snapshot := stored
	r.mu.Unlock()

	r.publisher.PublishTask(snapshot)
	return snapshot, handle, nil
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns snapshots in creation order.
func (r *Registry) List() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Handle returns the cancellation handle for an active task.
func (r *Registry) Handle(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Update applies the mutator under the lock and republishes the snapshot.
// The mutator must not block.
func (r *Registry) Update(id string, fn func(*Task)) (Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return Task{}, services.Wrap(services.ErrNotFound, "registry", "update",
			"unknown task "+id, nil)
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	snapshot := *t
	r.mu.Unlock()

	r.publisher.PublishTask(snapshot)
	return snapshot, nil
}

// Finish moves the task into a terminal status. The transition is skipped
// when the task is already terminal, so a cancelled task is never resurrected
// to error or completed. Returns whether the transition was applied.
func (r *Registry) Finish(id string, status Status, fn func(*Task)) (Task, bool, error) {
	if !status.IsTerminal() {
		return Task{}, false, services.Wrap(services.ErrIO, "registry", "finish",
			"non-terminal status "+string(status), nil)
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return Task{}, false, services.Wrap(services.ErrNotFound, "registry", "finish",
			"unknown task "+id, nil)
	}
	if t.Status.IsTerminal() {
		snapshot := *t
		r.mu.Unlock()
		return snapshot, false, nil
	}
	t.Status = status
	if fn != nil {
		fn(t)
	}
	t.UpdatedAt = time.Now().UTC()
	snapshot := *t
	r.mu.Unlock()

	r.publisher.PublishTask(snapshot)
	return snapshot, true, nil
}

// RequestCancel sets the task's cancellation flag. Idempotent; the status
// transition to cancelled is made by the pipeline when it observes the flag.
func (r *Registry) RequestCancel(id string) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "registry", "cancel",
			"unknown task "+id, nil)
	}
	h.Cancel()
	return nil
}

// ReleaseHandle drops the cancellation handle once the pipeline for the task
// has exited. The task itself stays listed until removed or cleared.
func (r *Registry) ReleaseHandle(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// Remove deletes the task and its handle.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return services.Wrap(services.ErrNotFound, "registry", "remove",
			"unknown task "+id, nil)
	}
	delete(r.tasks, id)
	delete(r.handles, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes terminal tasks and returns how many were dropped. With all
// set, every task without a live pipeline is removed as well.
func (r *Registry) Clear(all bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		t, ok := r.tasks[id]
		if !ok {
			continue
		}
		drop := t.Status.IsTerminal()
		if all && !drop {
			_, running := r.handles[id]
			drop = !running
		}
		if drop {
			delete(r.tasks, id)
			delete(r.handles, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// ForwardProgress applies one engine progress event to the task. Events for
// terminal tasks are dropped, and the synthetic "complete" phase is consumed
// here because the pipeline publishes the authoritative terminal transition
// itself.
func (r *Registry) ForwardProgress(id string, event ProgressEvent) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	if event.Stage == PhaseComplete {
		r.mu.Unlock()
		return
	}
	t.Status = Transcribing(event.Stage)
	t.ProgressPercent = event.Percent
	t.ProgressMessage = event.Message
	t.UpdatedAt = time.Now().UTC()
	snapshot := *t
	r.mu.Unlock()

	r.publisher.PublishProgress(id, event)
	r.publisher.PublishTask(snapshot)
}
