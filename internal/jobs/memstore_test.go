package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[int64]*Job)}
}

func (m *memStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memStore) GetJob(_ context.Context, id int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *memStore) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memStore) ListJobs(_ context.Context, status Status) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*Job
	for _, job := range m.jobs {
		if status != "" && job.Status != status {
			continue
		}
		list = append(list, cloneJob(job))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (m *memStore) OldestQueued(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *Job
	for _, job := range m.jobs {
		if job.Status != StatusQueued {
			continue
		}
		if oldest == nil ||
			job.QueuedAt < oldest.QueuedAt ||
			(job.QueuedAt == oldest.QueuedAt && job.ID < oldest.ID) {
			oldest = job
		}
	}
	return cloneJob(oldest), nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *memStore) DeleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}
