package jobs

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned by stores when no record matches the id.
var ErrJobNotFound = errors.New("job not found")

// Store persists job records. All calls are transactional at the
// single-record granularity; the pipeline mutates records exclusively
// through UpdateJob.
type Store interface {
	// CreateJob inserts a new record and assigns Job.ID.
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	// ListJobs returns jobs newest first; status "" means all.
	ListJobs(ctx context.Context, status Status) ([]*Job, error)
	// OldestQueued returns the queued job with the smallest queued_at,
	// ties broken by ascending id, or nil when the queue is empty.
	OldestQueued(ctx context.Context) (*Job, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	DeleteJob(ctx context.Context, id int64) error
}
