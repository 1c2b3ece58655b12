package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lekver/scribed/pkg/log"
)

// AcquireRequest identifies the source bytes for one job. Exactly one of
// UploadFilename or RemoteURL is set.
type AcquireRequest struct {
	JobID          int64
	UploadFilename string
	RemoteURL      string
}

// Acquired points at the source media on durable storage. Filename is the
// stored basename, recorded back on the job for later cleanup.
type Acquired struct {
	Path     string
	Filename string
}

// Acquirer obtains raw source media for a job: a presence check for
// uploads, a download plus audio extraction for remote videos.
type Acquirer interface {
	Acquire(ctx context.Context, req AcquireRequest) (Acquired, error)
}

type DiskAcquirer struct {
	uploadDir string
	ytdlpCmd  string
	runner    CommandRunner
}

func NewAcquirer(uploadDir string) *DiskAcquirer {
	return &DiskAcquirer{
		uploadDir: uploadDir,
		ytdlpCmd:  "yt-dlp",
		runner:    &execRunner{},
	}
}

func (a *DiskAcquirer) Acquire(ctx context.Context, req AcquireRequest) (Acquired, error) {
	if req.RemoteURL != "" {
		return a.download(ctx, req.JobID, req.RemoteURL)
	}
	return a.checkUpload(req.UploadFilename)
}

func (a *DiskAcquirer) checkUpload(filename string) (Acquired, error) {
	if strings.TrimSpace(filename) == "" {
		return Acquired{}, &AcquisitionError{
			Source:  "upload",
			Message: "job has no recorded upload filename",
		}
	}
	path := filepath.Join(a.uploadDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return Acquired{}, &AcquisitionError{
			Source:  "upload",
			Message: fmt.Sprintf("uploaded file %s is missing from storage", filename),
			Err:     err,
		}
	}
	return Acquired{Path: path, Filename: filepath.Base(filename)}, nil
}

// download fetches the remote video's best audio stream and extracts it
// to WAV under a name derived from the job id and the transliterated
// remote title.
func (a *DiskAcquirer) download(ctx context.Context, jobID int64, url string) (Acquired, error) {
	title, err := a.remoteTitle(ctx, url)
	if err != nil {
		return Acquired{}, err
	}

	safe := SafeFilename(title)
	if safe == "" {
		safe = "media"
	}
	base := fmt.Sprintf("remote_%d_%s", jobID, safe)
	template := filepath.Join(a.uploadDir, base+".%(ext)s")

	log.Info("Downloading remote media %s as %s", url, base)
	result, err := a.runner.Run(ctx, a.ytdlpCmd,
		"--no-warnings",
		"--no-playlist",
		"-f", "bestaudio/best",
		"-x", "--audio-format", "wav",
		"-o", template,
		url,
	)
	if err != nil {
		return Acquired{}, &AcquisitionError{
			Source:  url,
			Message: truncateDiagnostic(strings.TrimSpace(result.Stderr)),
			Err:     err,
		}
	}

	wavPath := filepath.Join(a.uploadDir, base+".wav")
	if _, err := os.Stat(wavPath); err != nil {
		return Acquired{}, &AcquisitionError{
			Source:  url,
			Message: "download finished but extracted audio is missing",
			Err:     err,
		}
	}
	return Acquired{Path: wavPath, Filename: base + ".wav"}, nil
}

func (a *DiskAcquirer) remoteTitle(ctx context.Context, url string) (string, error) {
	result, err := a.runner.Run(ctx, a.ytdlpCmd, "--no-warnings", "--no-playlist", "--print", "title", url)
	if err != nil {
		return "", &AcquisitionError{
			Source:  url,
			Message: truncateDiagnostic(strings.TrimSpace(result.Stderr)),
			Err:     err,
		}
	}
	return strings.TrimSpace(result.Stdout), nil
}
