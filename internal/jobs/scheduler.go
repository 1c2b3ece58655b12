package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/lekver/scribed/pkg/log"
)

// RunFunc executes one admitted job to a terminal state.
type RunFunc func(ctx context.Context, id int64) error

// Scheduler admits exactly one queued job to processing at a time, in
// queued_at order. Admission kicks and completion events flow through one
// owning goroutine, so the "is anything processing" check and the
// promotion are serialized by construction.
type Scheduler struct {
	store Store
	run   RunFunc

	kicks    chan struct{}
	finished chan int64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewScheduler(store Store, run RunFunc) *Scheduler {
	return &Scheduler{
		store:    store,
		run:      run,
		kicks:    make(chan struct{}, 1),
		finished: make(chan int64, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start reconciles jobs stranded in processing by an unclean shutdown,
// then begins admitting. Safe to call once; later calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.reconcile(ctx)

	s.wg.Add(1)
	go s.loop(ctx)
	s.AdmitNext()
}

// Stop shuts the admission loop down and waits for an in-flight job to
// finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}

// AdmitNext asks the scheduler to consider the queue. It never blocks and
// is idempotent: redundant calls collapse into one pending kick.
func (s *Scheduler) AdmitNext() {
	select {
	case s.kicks <- struct{}{}:
	default:
	}
}

// Stats reports queue counters for the stats endpoint.
func (s *Scheduler) Stats(ctx context.Context) (QueueStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return QueueStats{
		Queued:     counts[StatusQueued],
		Processing: counts[StatusProcessing],
		Total:      total,
	}, nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	// current is owned by this goroutine; zero means the worker is idle.
	var current int64

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.kicks:
			if current == 0 {
				current = s.admit(ctx)
			}
		case id := <-s.finished:
			if id == current {
				current = 0
			}
			// Admission after completion is unconditional, success or
			// failure alike.
			if current == 0 {
				current = s.admit(ctx)
			}
		}
	}
}

// admit promotes the oldest queued job, returning its id, or 0 when the
// queue is empty.
func (s *Scheduler) admit(ctx context.Context) int64 {
	job, err := s.store.OldestQueued(ctx)
	if err != nil {
		log.Error("Cannot read queue: %v", err)
		return 0
	}
	if job == nil {
		return 0
	}

	s.wg.Add(1)
	go func(id int64) {
		defer s.wg.Done()
		if err := s.run(ctx, id); err != nil {
			if errors.Is(err, ErrAlreadyProcessing) {
				log.Warn("Admission of job %d skipped: %v", id, err)
			} else {
				log.Error("Run of job %d aborted: %v", id, err)
			}
		}
		select {
		case s.finished <- id:
		case <-s.stopCh:
		}
	}(job.ID)

	return job.ID
}

// reconcile applies the restart policy: a job stuck in processing after a
// crash is terminal failed, never silently requeued.
func (s *Scheduler) reconcile(ctx context.Context) {
	stuck, err := s.store.ListJobs(ctx, StatusProcessing)
	if err != nil {
		log.Error("Startup reconciliation failed: %v", err)
		return
	}
	for _, job := range stuck {
		job.Status = StatusFailed
		job.ErrorDetail = "interrupted by restart"
		if err := s.store.UpdateJob(ctx, job); err != nil {
			log.Error("Cannot mark interrupted job %d failed: %v", job.ID, err)
			continue
		}
		log.Warn("Job %d was processing during shutdown, marked failed", job.ID)
	}
}
