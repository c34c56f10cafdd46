package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "default")
}

func TestPushPop(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Push(ctx, "order.export", map[string]any{"order_id": float64(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "order.export", job.Type)
	assert.Equal(t, map[string]any{"order_id": float64(1)}, job.Payload)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestPopEmptyReturnsNil(t *testing.T) {
	q := newTestQueue(t)

	job, err := q.Pop(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPopPreservesOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Push(ctx, "a", nil)
	require.NoError(t, err)
	second, err := q.Push(ctx, "b", nil)
	require.NoError(t, err)

	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, job.ID)

	job, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, job.ID)
}

func TestFailAndRetryFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Push(ctx, "order.export", nil)
	require.NoError(t, err)
	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, errors.New("boom")))

	failed, err := q.FailedLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	moved, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	failed, err = q.FailedLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)

	// The retried job comes back with a bumped attempt counter and no
	// failure metadata.
	job, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.Error)
	assert.Nil(t, job.FailedAt)
}

func TestWorkerProcessesJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	done := make(chan *Job, 1)
	w := NewWorker(q, zap.NewNop(), 2)
	w.Register("order.export", func(ctx context.Context, job *Job) error {
		done <- job
		return nil
	})

	id, err := q.Push(ctx, "order.export", map[string]any{"order_id": float64(7)})
	require.NoError(t, err)

	w.Start(ctx)
	defer w.Stop()

	select {
	case job := <-done:
		assert.Equal(t, id, job.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestWorkerFailsJobsWithoutHandler(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Push(ctx, "unknown.type", nil)
	require.NoError(t, err)

	w := NewWorker(q, zap.NewNop(), 1)
	w.Start(ctx)

	require.Eventually(t, func() bool {
		n, err := q.FailedLen(ctx)
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)
	w.Stop()
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	w := NewWorker(q, zap.NewNop(), 1)
	w.Register("explode", func(ctx context.Context, job *Job) error {
		panic("kaboom")
	})

	_, err := q.Push(ctx, "explode", nil)
	require.NoError(t, err)

	w.Start(ctx)
	require.Eventually(t, func() bool {
		n, err := q.FailedLen(ctx)
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)
	w.Stop()
}
