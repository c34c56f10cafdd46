// Package hooks dispatches ordered lifecycle callbacks around persistence
// operations: global hooks registered on the entity type run first, followed
// by per-instance hooks, all sequentially in registration order.
package hooks

import (
	"context"
	"fmt"

	"github.com/fennec-api/fennec/internal/orm/schema"
)

// Instance carries per-entity-instance hook overrides and suppressions.
// The zero value is ready to use.
type Instance struct {
	hooks      map[schema.HookEvent][]schema.HookFunc
	suppressed map[schema.HookEvent]bool
}

// On registers an instance hook. Instance hooks fire after all global hooks
// for the same event.
func (i *Instance) On(event schema.HookEvent, fn schema.HookFunc) {
	if i.hooks == nil {
		i.hooks = make(map[schema.HookEvent][]schema.HookFunc)
	}
	i.hooks[event] = append(i.hooks[event], fn)
}

// Suppress silences a named event entirely for this instance: neither its
// own hooks nor the global ones will fire.
func (i *Instance) Suppress(event schema.HookEvent) {
	if i.suppressed == nil {
		i.suppressed = make(map[schema.HookEvent]bool)
	}
	i.suppressed[event] = true
}

// Unsuppress re-enables a previously suppressed event.
func (i *Instance) Unsuppress(event schema.HookEvent) {
	delete(i.suppressed, event)
}

// Suppressed reports whether the event is silenced on this instance.
func (i *Instance) Suppressed(event schema.HookEvent) bool {
	return i.suppressed[event]
}

func (i *Instance) list(event schema.HookEvent) []schema.HookFunc {
	if i.hooks == nil {
		return nil
	}
	return i.hooks[event]
}

// Dispatch runs all hooks for the event: globals in registration order, then
// instance hooks. Hooks are awaited one at a time; the first error aborts the
// dispatch and is returned wrapped with the event name.
func Dispatch(ctx context.Context, event schema.HookEvent, t *schema.EntityType, inst *Instance, p *schema.HookPayload) error {
	if inst != nil && inst.Suppressed(event) {
		return nil
	}

	for _, fn := range t.GlobalHooks(event) {
		if err := fn(ctx, p); err != nil {
			return fmt.Errorf("hook %s failed: %w", event, err)
		}
	}
	if inst != nil {
		for _, fn := range inst.list(event) {
			if err := fn(ctx, p); err != nil {
				return fmt.Errorf("hook %s failed: %w", event, err)
			}
		}
	}
	return nil
}
