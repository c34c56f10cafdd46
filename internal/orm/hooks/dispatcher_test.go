package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennec-api/fennec/internal/orm/schema"
)

func newTestType(t *testing.T) *schema.EntityType {
	t.Helper()
	return schema.NewRegistry().Define("Order", nil)
}

func TestDispatchRunsGlobalsBeforeInstanceHooks(t *testing.T) {
	typ := newTestType(t)

	var order []string
	typ.Hook(schema.BeforeCreate, func(ctx context.Context, p *schema.HookPayload) error {
		order = append(order, "global-1")
		return nil
	})
	typ.Hook(schema.BeforeCreate, func(ctx context.Context, p *schema.HookPayload) error {
		order = append(order, "global-2")
		return nil
	})

	var inst Instance
	inst.On(schema.BeforeCreate, func(ctx context.Context, p *schema.HookPayload) error {
		order = append(order, "instance")
		return nil
	})

	err := Dispatch(context.Background(), schema.BeforeCreate, typ, &inst, &schema.HookPayload{})
	require.NoError(t, err)
	assert.Equal(t, []string{"global-1", "global-2", "instance"}, order)
}

func TestDispatchAbortsOnFirstError(t *testing.T) {
	typ := newTestType(t)
	boom := errors.New("boom")

	ran := 0
	typ.Hook(schema.BeforeUpdate, func(ctx context.Context, p *schema.HookPayload) error {
		ran++
		return boom
	})
	typ.Hook(schema.BeforeUpdate, func(ctx context.Context, p *schema.HookPayload) error {
		ran++
		return nil
	})

	err := Dispatch(context.Background(), schema.BeforeUpdate, typ, nil, &schema.HookPayload{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "before_update")
	assert.Equal(t, 1, ran)
}

func TestSuppressSilencesGlobalAndInstanceHooks(t *testing.T) {
	typ := newTestType(t)

	ran := false
	typ.Hook(schema.BeforeDelete, func(ctx context.Context, p *schema.HookPayload) error {
		ran = true
		return nil
	})

	var inst Instance
	inst.On(schema.BeforeDelete, func(ctx context.Context, p *schema.HookPayload) error {
		ran = true
		return nil
	})
	inst.Suppress(schema.BeforeDelete)

	require.NoError(t, Dispatch(context.Background(), schema.BeforeDelete, typ, &inst, &schema.HookPayload{}))
	assert.False(t, ran)

	// Other events keep firing, and unsuppressing re-enables the event.
	inst.Unsuppress(schema.BeforeDelete)
	require.NoError(t, Dispatch(context.Background(), schema.BeforeDelete, typ, &inst, &schema.HookPayload{}))
	assert.True(t, ran)
}
