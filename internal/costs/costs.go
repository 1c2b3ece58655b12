package costs

import (
	"context"
	"time"
)

const (
	ServiceTranscription = "transcription"
	CategoryMedia        = "media"
)

// Event is one immutable cost record, emitted per successfully completed
// paid job.
type Event struct {
	ID        int64        `json:"id"`
	Service   string       `json:"service"`
	Category  string       `json:"category"`
	Amount    float64      `json:"amount"`
	Context   EventContext `json:"context"`
	CreatedAt time.Time    `json:"created_at"`
}

// EventContext ties an event back to the job that incurred it.
type EventContext struct {
	JobID     int64  `json:"job_id"`
	Method    string `json:"method"`
	SourceRef string `json:"source_ref"`
}

// Recorder appends cost events to the ledger.
type Recorder interface {
	RecordCost(ctx context.Context, event Event) error
}

// Ledger is the read side of the cost store.
type Ledger interface {
	Recorder
	ListCosts(ctx context.Context) ([]Event, error)
	TotalCost(ctx context.Context) (float64, error)
}
