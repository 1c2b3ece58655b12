package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/lekver/scribed/internal/costs"
	"github.com/lekver/scribed/internal/jobs"
)

// queueScheduler is the admission surface the API needs.
type queueScheduler interface {
	AdmitNext()
	Stats(ctx context.Context) (jobs.QueueStats, error)
}

// SubmissionDefaults fill in omitted submission fields.
type SubmissionDefaults struct {
	Method       jobs.Method
	LanguageHint string
	Timestamps   bool
}

type Server struct {
	store     jobs.Store
	scheduler queueScheduler
	ledger    costs.Ledger
	defaults  SubmissionDefaults

	uploadDir      string
	maxUploadBytes int64
	sweepCron      string
	// artifactPath locates a job's transient normalized audio so record
	// deletion can reclaim it.
	artifactPath func(id int64) string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithCostLedger(ledger costs.Ledger) Option {
	return func(s *Server) {
		s.ledger = ledger
	}
}

func WithSweepCron(expr string) Option {
	return func(s *Server) {
		s.sweepCron = expr
	}
}

func WithArtifactPath(fn func(id int64) string) Option {
	return func(s *Server) {
		s.artifactPath = fn
	}
}

func NewServer(
	store jobs.Store,
	scheduler queueScheduler,
	uploadDir string,
	maxUploadBytes int64,
	defaults SubmissionDefaults,
	opts ...Option,
) *Server {
	s := &Server{
		store:          store,
		scheduler:      scheduler,
		defaults:       defaults,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/transcriptions/upload", s.handleUpload)
	s.mux.HandleFunc("/api/transcriptions/remote", s.handleRemote)
	s.mux.HandleFunc("/api/transcriptions/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/transcriptions", s.handleListJobs)
	s.mux.HandleFunc("/api/transcriptions/", s.handleJobByID)
	s.mux.HandleFunc("/api/stats/queue", s.handleQueueStats)
	s.mux.HandleFunc("/api/costs", s.handleCosts)
}
