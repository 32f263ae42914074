package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifflux/rifflux/internal/errs"
)

func waitForStatus(t *testing.T, q *Queue, id string, want Status, timeout time.Duration) Job {
	deadline := time.Now().Add(timeout)
	for {
		j, err := q.Status(id)
		require.NoError(t, err)
		if j.Status == want {
			return j
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not reach status %s, last seen %s", id, want, j.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestQueue_SubmitRunsAndCompletes(t *testing.T) {
	// Given: a queue and a job that succeeds
	q := New()
	defer q.Shutdown(time.Second)

	var ran atomic.Bool
	id, err := q.Submit(func(ctx context.Context) (any, error) {
		ran.Store(true)
		return "ok", nil
	})
	require.NoError(t, err)

	// When: the job finishes
	j := waitForStatus(t, q, id, StatusCompleted, time.Second)

	// Then: it ran and recorded its result
	assert.True(t, ran.Load())
	assert.Equal(t, "ok", j.Result)
}

func TestQueue_NonTransientFailureIsTerminalImmediately(t *testing.T) {
	// Given: a job that fails with a non-retryable kind
	q := New()
	defer q.Shutdown(time.Second)

	var attempts atomic.Int32
	id, err := q.Submit(func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, errs.New(errs.InvalidInput, "bad input")
	})
	require.NoError(t, err)

	// When: it fails
	j := waitForStatus(t, q, id, StatusFailed, time.Second)

	// Then: it never retries
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, 0, j.Retries)
	assert.Equal(t, errs.InvalidInput, j.LastErr)
}

func TestQueue_TransientFailureRetriesThenSucceeds(t *testing.T) {
	// Given: a job that fails transiently twice then succeeds
	q := New()
	defer q.Shutdown(time.Second)

	var attempts atomic.Int32
	id, err := q.Submit(func(ctx context.Context) (any, error) {
		n := attempts.Add(1)
		if n <= 2 {
			return nil, errs.New(errs.Transient, "database is locked")
		}
		return "recovered", nil
	})
	require.NoError(t, err)

	// When: it eventually completes
	j := waitForStatus(t, q, id, StatusCompleted, 10*time.Second)

	// Then: it retried exactly twice before succeeding
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, j.Retries)
	assert.Equal(t, "recovered", j.Result)
}

func TestQueue_RetryExhaustionFailsAfterMaxRetries(t *testing.T) {
	// Given: a job that always fails transiently
	q := New()
	defer q.Shutdown(time.Second)

	var attempts atomic.Int32
	id, err := q.Submit(func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, errs.New(errs.Transient, "busy")
	})
	require.NoError(t, err)

	// When: it exhausts its retries
	j := waitForStatus(t, q, id, StatusFailed, 10*time.Second)

	// Then: it attempted once plus MaxRetries retries
	assert.Equal(t, int32(1+MaxRetries), attempts.Load())
	assert.Equal(t, MaxRetries, j.Retries)
	assert.Equal(t, errs.Transient, j.LastErr)
}

func TestQueue_FIFOOrdering(t *testing.T) {
	// Given: a queue with a blocker job followed by three quick jobs
	q := New()
	defer q.Shutdown(time.Second)

	release := make(chan struct{})
	_, err := q.Submit(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	var order []int
	var ids []string
	for i := 0; i < 3; i++ {
		i := i
		id, err := q.Submit(func(ctx context.Context) (any, error) {
			order = append(order, i)
			return nil, nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// When: the blocker releases
	close(release)
	for _, id := range ids {
		waitForStatus(t, q, id, StatusCompleted, time.Second)
	}

	// Then: the quick jobs ran in submission order
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestQueue_ListReturnsAllJobsOldestFirst(t *testing.T) {
	// Given: several submitted jobs
	q := New()
	defer q.Shutdown(time.Second)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Submit(func(ctx context.Context) (any, error) { return nil, nil })
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, q, id, StatusCompleted, time.Second)
	}

	// When: listing
	all := q.List()

	// Then: every submitted job appears in submission order
	require.Len(t, all, 3)
	for i, j := range all {
		assert.Equal(t, ids[i], j.ID)
	}
}

func TestQueue_StatusUnknownJobIsNotFound(t *testing.T) {
	q := New()
	defer q.Shutdown(time.Second)

	_, err := q.Status("does-not-exist")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.Of(err))
}

func TestQueue_ShutdownRejectsNewSubmissions(t *testing.T) {
	// Given: a shut-down queue
	q := New()
	require.NoError(t, q.Shutdown(time.Second))

	// When: submitting after shutdown
	_, err := q.Submit(func(ctx context.Context) (any, error) { return nil, nil })

	// Then: it is rejected
	require.Error(t, err)
}

func TestQueue_ShutdownCancelsStillQueuedJobs(t *testing.T) {
	// Given: a blocker job holding the worker, plus a queued job behind it
	q := New()

	release := make(chan struct{})
	_, err := q.Submit(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	queuedID, err := q.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	// When: shutting down while the queued job never got to run
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, q.Shutdown(time.Second))

	// Then: the still-queued job was cancelled as failed
	j, err := q.Status(queuedID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, j.Status)
}

func TestQueue_HasMatchingKeyReflectsQueuedAndRunningJobs(t *testing.T) {
	// Given: a queue with nothing submitted yet
	q := New()
	defer q.Shutdown(time.Second)

	assert.False(t, q.HasMatchingKey("a.md\x00b.md"))
	assert.False(t, q.HasMatchingKey(""))

	// When: a job is submitted under a key
	release := make(chan struct{})
	id, err := q.SubmitWithKey("a.md\x00b.md", func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	// Then: the same key matches while it is queued or running
	assert.True(t, q.HasMatchingKey("a.md\x00b.md"))
	assert.False(t, q.HasMatchingKey("c.md"))

	// And: once it completes, the key no longer matches
	close(release)
	waitForStatus(t, q, id, StatusCompleted, time.Second)
	assert.False(t, q.HasMatchingKey("a.md\x00b.md"))
}

func TestQueue_ShutdownLetsRunningJobFinishWithinTimeout(t *testing.T) {
	// Given: a running job that finishes quickly
	q := New()

	var completed atomic.Bool
	id, err := q.Submit(func(ctx context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		completed.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// When: shutdown is given ample time
	require.NoError(t, q.Shutdown(time.Second))

	// Then: the running job completed rather than being cut off
	assert.True(t, completed.Load())
	j, err := q.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, j.Status)
}
