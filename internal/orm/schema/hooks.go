package schema

import (
	"context"
	"database/sql"
)

// HookEvent names a persistence lifecycle event.
type HookEvent int

const (
	BeforeCreate HookEvent = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
)

// String returns the string representation of the hook event.
func (e HookEvent) String() string {
	switch e {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	default:
		return "unknown"
	}
}

// HookPayload is handed to every hook invocation. Snapshot carries the row
// values relevant to the event (the pre-delete row for delete events).
type HookPayload struct {
	Entity   any
	Tx       *sql.Tx
	Snapshot map[string]any
}

// HookFunc is a lifecycle callback. Hooks run sequentially in registration
// order and may perform I/O; the first error aborts the dispatch.
type HookFunc func(ctx context.Context, p *HookPayload) error

// Hook appends a global lifecycle hook to the entity type. Global hooks run
// before any per-instance hooks for the same event.
func (t *EntityType) Hook(event HookEvent, fn HookFunc) *EntityType {
	t.hooks[event] = append(t.hooks[event], fn)
	return t
}

// GlobalHooks returns the global hook list for an event in registration order.
func (t *EntityType) GlobalHooks(event HookEvent) []HookFunc {
	return t.hooks[event]
}
