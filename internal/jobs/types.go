package jobs

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the pipeline is done with a job in this status.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

type Method string

const (
	MethodLocal  Method = "local"
	MethodRemote Method = "remote"
)

type SourceKind string

const (
	SourceUpload      SourceKind = "upload"
	SourceRemoteVideo SourceKind = "remote_video"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Source identifies where a job's media comes from. Exactly one variant is
// populated: Upload for files already on disk, URL for remote videos.
type Source struct {
	Kind SourceKind `json:"kind"`

	// Upload variant
	Filename  string    `json:"filename,omitempty"`
	ByteSize  int64     `json:"byte_size,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`

	// Remote video variant
	URL string `json:"url,omitempty"`
}

// Job is one transcription request moving through
// queued -> processing -> ready|failed.
type Job struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
	Source Source `json:"source"`
	Method Method `json:"method"`

	// LanguageHint is an ISO code or "auto".
	LanguageHint string `json:"language_hint"`
	Timestamps   bool   `json:"timestamps"`

	// QueuedAt and StartedAt are epoch milliseconds, used for ordering
	// and display only.
	QueuedAt  int64 `json:"queued_at"`
	StartedAt int64 `json:"started_at,omitempty"`

	// Populated on success.
	Transcript       string  `json:"transcript"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`
	Cost             float64 `json:"cost"`

	// Populated on failure.
	ErrorDetail string `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueStats is the snapshot reported by the stats endpoint.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Total      int `json:"total"`
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}

// NowMillis is the monotonic-enough submission clock: epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
