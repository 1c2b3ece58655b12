package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/lekver/scribed/internal/costs"
	"github.com/lekver/scribed/internal/media"
	"github.com/lekver/scribed/internal/transcribe"
	"github.com/lekver/scribed/pkg/log"
)

// ErrAlreadyProcessing means Run found another job in processing state
// and left its own job queued.
var ErrAlreadyProcessing = errors.New("another job is already processing")

// Runner owns the lifecycle of one job from admission to a terminal
// state. All failures inside a run funnel into a failed record with a
// stored diagnostic; nothing propagates to the scheduler.
type Runner struct {
	store      Store
	acquirer   media.Acquirer
	normalizer media.Normalizer
	prober     media.DurationProber
	backends   map[Method]transcribe.Backend
	ledger     costs.Recorder
	tempDir    string
}

func NewRunner(
	store Store,
	acquirer media.Acquirer,
	normalizer media.Normalizer,
	prober media.DurationProber,
	backends map[Method]transcribe.Backend,
	ledger costs.Recorder,
	tempDir string,
) *Runner {
	return &Runner{
		store:      store,
		acquirer:   acquirer,
		normalizer: normalizer,
		prober:     prober,
		backends:   backends,
		ledger:     ledger,
		tempDir:    tempDir,
	}
}

// Run drives one job through processing. Preconditions: the job exists
// and is queued, and nothing else is processing; violations make the call
// a no-op that leaves the job queued for a later admission attempt.
func (r *Runner) Run(ctx context.Context, id int64) error {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusQueued {
		return nil
	}

	counts, err := r.store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	if counts[StatusProcessing] > 0 {
		return ErrAlreadyProcessing
	}

	job.Status = StatusProcessing
	if job.StartedAt == 0 {
		job.StartedAt = NowMillis()
	}
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	log.Info("Job %d started (%s, method=%s)", job.ID, job.Source.Kind, job.Method)

	if err := r.process(ctx, job); err != nil {
		r.fail(ctx, job, err)
	}
	return nil
}

// process runs acquisition, normalization and transcription. Any panic is
// converted into an error so the caller's finalization always runs.
func (r *Runner) process(ctx context.Context, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unexpected failure: %v\n%s", rec, debug.Stack())
		}
	}()

	acquired, err := r.acquirer.Acquire(ctx, media.AcquireRequest{
		JobID:          job.ID,
		UploadFilename: job.Source.Filename,
		RemoteURL:      job.Source.URL,
	})
	if err != nil {
		return err
	}
	if job.Source.Filename != acquired.Filename {
		job.Source.Filename = acquired.Filename
		if err := r.store.UpdateJob(ctx, job); err != nil {
			return err
		}
	}

	audioPath := r.audioArtifactPath(job.ID)
	if err := r.normalizer.Normalize(ctx, acquired.Path, audioPath); err != nil {
		return err
	}

	// Persist duration before transcription so progress is visible even
	// when the backend later fails.
	seconds, err := r.prober.Duration(ctx, audioPath)
	if err != nil {
		return err
	}
	job.DurationSeconds = seconds
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	backend, ok := r.backends[job.Method]
	if !ok {
		return fmt.Errorf("unknown transcription method %q", job.Method)
	}

	result, err := backend.Transcribe(ctx, audioPath, transcribe.Options{
		LanguageHint: job.LanguageHint,
		Timestamps:   job.Timestamps,
	})
	if err != nil {
		return err
	}

	job.Transcript = result.Text
	job.DetectedLanguage = result.DetectedLanguage
	job.Cost = result.Cost
	job.Status = StatusReady
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	r.recordCost(ctx, job)
	r.removeArtifact(audioPath)

	log.Info("Job %d ready (%.1fs of audio, cost %.4f)", job.ID, job.DurationSeconds, job.Cost)
	return nil
}

// fail finalizes the job as failed. Partial progress recorded earlier,
// such as the probed duration, is preserved.
func (r *Runner) fail(ctx context.Context, job *Job, cause error) {
	job.Status = StatusFailed
	job.ErrorDetail = cause.Error()
	if err := r.store.UpdateJob(ctx, job); err != nil {
		log.Error("Failed to record failure of job %d: %v (cause: %v)", job.ID, err, cause)
		return
	}
	log.Warn("Job %d failed: %v", job.ID, cause)
}

// recordCost emits one cost event for a paid job. Ledger errors never
// fail the job.
func (r *Runner) recordCost(ctx context.Context, job *Job) {
	if job.Cost <= 0 || r.ledger == nil {
		return
	}
	sourceRef := job.Source.Filename
	if job.Source.Kind == SourceRemoteVideo {
		sourceRef = job.Source.URL
	}
	err := r.ledger.RecordCost(ctx, costs.Event{
		Service:  costs.ServiceTranscription,
		Category: costs.CategoryMedia,
		Amount:   job.Cost,
		Context: costs.EventContext{
			JobID:     job.ID,
			Method:    string(job.Method),
			SourceRef: sourceRef,
		},
	})
	if err != nil {
		log.Error("Failed to record cost event for job %d: %v", job.ID, err)
	}
}

// removeArtifact deletes the transient normalized audio, never the
// original upload. On failed jobs the artifact is retained for diagnosis.
func (r *Runner) removeArtifact(audioPath string) {
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove audio artifact %s: %v", audioPath, err)
	}
}

func (r *Runner) audioArtifactPath(id int64) string {
	return filepath.Join(r.tempDir, fmt.Sprintf("%d_audio.wav", id))
}

// AudioArtifactPath exposes the temp artifact location for record
// deletion, which must also remove a job's leftovers.
func (r *Runner) AudioArtifactPath(id int64) string {
	return r.audioArtifactPath(id)
}
