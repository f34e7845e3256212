// Package tasks tracks in-flight assistant tasks for debugging and health
// reporting.
package tasks

import (
	"sync"
	"time"
)

// Status labels a task in a registry snapshot.
type Status string

// Task statuses reported by Snapshot.
const (
	StatusRunning Status = "running"
	StatusStuck   Status = "stuck"
)

// Info is a point-in-time view of one in-flight task.
type Info struct {
	ConversationID string        `json:"conversation_id"`
	UserInput      string        `json:"user_input"`
	Duration       time.Duration `json:"-"`
	DurationSecs   float64       `json:"duration_seconds"`
	Status         Status        `json:"status"`
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// Registry is a concurrency-safe record of tasks currently being processed.
// A task is keyed by conversation, matching the upstream webhook contract:
// one in-flight assistant request per conversation.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]entry
	clock      Clock
	stuckAfter time.Duration
}

type entry struct {
	input   string
	started time.Time
}

// NewRegistry constructs a Registry. Tasks older than stuckAfter are
// reported as stuck rather than running.
func NewRegistry(clock Clock, stuckAfter time.Duration) *Registry {
	if stuckAfter <= 0 {
		stuckAfter = 5 * time.Minute
	}
	return &Registry{
		entries:    make(map[string]entry),
		clock:      clock,
		stuckAfter: stuckAfter,
	}
}

// Begin records a task as in flight, replacing any previous entry for the
// same conversation.
func (r *Registry) Begin(conversationID, input string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[conversationID] = entry{input: input, started: r.clock.Now()}
}

// End removes a task from the registry. Ending an unknown conversation is a
// no-op.
func (r *Registry) End(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, conversationID)
}

// Count returns the number of in-flight tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of all in-flight tasks with computed durations.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	infos := make([]Info, 0, len(r.entries))
	for id, e := range r.entries {
		d := now.Sub(e.started)
		status := StatusRunning
		if d >= r.stuckAfter {
			status = StatusStuck
		}
		infos = append(infos, Info{
			ConversationID: id,
			UserInput:      e.input,
			Duration:       d,
			DurationSecs:   roundSeconds(d),
			Status:         status,
		})
	}
	return infos
}

// roundSeconds matches the one-decimal rounding the debug endpoint reports.
func roundSeconds(d time.Duration) float64 {
	return float64(int64(d.Seconds()*10+0.5)) / 10
}
