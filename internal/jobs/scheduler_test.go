package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueJobAt(t *testing.T, store *memStore, queuedAt int64) *Job {
	t.Helper()
	job := &Job{
		Title:    "queued",
		Status:   StatusQueued,
		Source:   Source{Kind: SourceUpload, Filename: "in.mp3"},
		Method:   MethodLocal,
		QueuedAt: queuedAt,
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

// markTerminal is the minimal run func: it finishes the job so the
// scheduler can move on.
func markTerminal(store *memStore, to Status) RunFunc {
	return func(ctx context.Context, id int64) error {
		job, err := store.GetJob(ctx, id)
		if err != nil {
			return err
		}
		job.Status = to
		return store.UpdateJob(ctx, job)
	}
}

func allTerminal(store *memStore) func() bool {
	return func() bool {
		counts, err := store.CountByStatus(context.Background())
		if err != nil {
			return false
		}
		return counts[StatusQueued] == 0 && counts[StatusProcessing] == 0
	}
}

func TestSchedulerRunsJobsInQueueOrder(t *testing.T) {
	store := newMemStore()
	third := queueJobAt(t, store, 300)
	first := queueJobAt(t, store, 100)
	second := queueJobAt(t, store, 200)

	var mu sync.Mutex
	var order []int64
	run := func(ctx context.Context, id int64) error {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		return markTerminal(store, StatusReady)(ctx, id)
	}

	s := NewScheduler(store, run)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, allTerminal(store), time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, order)
}

func TestSchedulerTiesBreakByID(t *testing.T) {
	store := newMemStore()
	a := queueJobAt(t, store, 100)
	b := queueJobAt(t, store, 100)

	var mu sync.Mutex
	var order []int64
	run := func(ctx context.Context, id int64) error {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		return markTerminal(store, StatusReady)(ctx, id)
	}

	s := NewScheduler(store, run)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, allTerminal(store), time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{a.ID, b.ID}, order)
}

func TestSchedulerNeverRunsTwoJobsAtOnce(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 5; i++ {
		queueJobAt(t, store, int64(100+i))
	}

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	run := func(ctx context.Context, id int64) error {
		n := inFlight.Add(1)
		for {
			seen := maxSeen.Load()
			if n <= seen || maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return markTerminal(store, StatusReady)(ctx, id)
	}

	s := NewScheduler(store, run)
	s.Start(context.Background())
	defer s.Stop()

	// Hammer admission from the outside while jobs run.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.AdmitNext()
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, allTerminal(store), 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestSchedulerAdmitNextOnEmptyQueueIsNoOp(t *testing.T) {
	store := newMemStore()
	var runs atomic.Int32
	run := func(ctx context.Context, id int64) error {
		runs.Add(1)
		return markTerminal(store, StatusReady)(ctx, id)
	}

	s := NewScheduler(store, run)
	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < 5; i++ {
		s.AdmitNext()
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{}, stats)
}

func TestSchedulerFailureDoesNotBlockQueue(t *testing.T) {
	store := newMemStore()
	doomed := queueJobAt(t, store, 100)
	healthy := queueJobAt(t, store, 200)

	run := func(ctx context.Context, id int64) error {
		if id == doomed.ID {
			return markTerminal(store, StatusFailed)(ctx, id)
		}
		return markTerminal(store, StatusReady)(ctx, id)
	}

	s := NewScheduler(store, run)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, allTerminal(store), time.Second, 10*time.Millisecond)

	failed, err := store.GetJob(context.Background(), doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	ready, err := store.GetJob(context.Background(), healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, ready.Status)
}

func TestSchedulerStats(t *testing.T) {
	store := newMemStore()
	queueJobAt(t, store, 100)
	queueJobAt(t, store, 200)
	done := queueJobAt(t, store, 300)
	done.Status = StatusReady
	require.NoError(t, store.UpdateJob(context.Background(), done))

	s := NewScheduler(store, markTerminal(store, StatusReady))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queued: 2, Processing: 0, Total: 3}, stats)
}

func TestSchedulerReconcileMarksInterruptedJobsFailed(t *testing.T) {
	store := newMemStore()
	stuck := queueJobAt(t, store, 100)
	stuck.Status = StatusProcessing
	require.NoError(t, store.UpdateJob(context.Background(), stuck))

	s := NewScheduler(store, markTerminal(store, StatusReady))
	s.Start(context.Background())
	defer s.Stop()

	got, err := store.GetJob(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.ErrorDetail)
}
