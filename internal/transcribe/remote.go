package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"

	"github.com/lekver/scribed/internal/media"
	"github.com/lekver/scribed/pkg/log"
)

const remoteModel = "whisper-1"

// RemoteBackend transcribes through a hosted Whisper-compatible API. It is
// stateless per call and charges a fixed per-minute rate based on the
// audio duration.
type RemoteBackend struct {
	apiURL        string
	apiKey        string
	ratePerMinute float64
	httpClient    *http.Client
	prober        media.DurationProber
}

func NewRemoteBackend(apiURL, apiKey string, ratePerMinute float64, prober media.DurationProber) *RemoteBackend {
	return &RemoteBackend{
		apiURL:        strings.TrimRight(apiURL, "/"),
		apiKey:        apiKey,
		ratePerMinute: ratePerMinute,
		httpClient: &http.Client{
			Timeout: 15 * time.Minute,
		},
		prober: prober,
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return Result{}, &AuthenticationError{Message: "no API key configured for remote transcription"}
	}

	text, err := b.request(ctx, audioPath, opts)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Text:             text,
		DetectedLanguage: b.detectLanguage(opts.LanguageHint, text),
		Cost:             b.cost(ctx, audioPath),
	}, nil
}

func (b *RemoteBackend) request(ctx context.Context, audioPath string, opts Options) (string, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return "", &TranscriptionError{
			Backend: b.Name(),
			Message: "cannot open audio file " + audioPath,
			Err:     err,
		}
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "build request body", Err: err}
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "read audio file", Err: err}
	}

	_ = writer.WriteField("model", remoteModel)
	if opts.Timestamps {
		_ = writer.WriteField("response_format", "srt")
	} else {
		_ = writer.WriteField("response_format", "text")
	}
	if hint := normalizeHint(opts.LanguageHint); hint != "" {
		_ = writer.WriteField("language", hint)
	}
	if err := writer.Close(); err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "build request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TranscriptionError{Backend: b.Name(), Message: "read response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthenticationError{Message: "API key rejected by transcription service"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TranscriptionError{
			Backend: b.Name(),
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncateDiagnostic(strings.TrimSpace(string(payload)))),
		}
	}

	return strings.TrimSpace(string(payload)), nil
}

// cost computes the fee from the probed audio duration. When the probe
// fails the minimum billable unit of one minute is assumed, matching the
// provider's floor.
func (b *RemoteBackend) cost(ctx context.Context, audioPath string) float64 {
	seconds, err := b.prober.Duration(ctx, audioPath)
	if err != nil {
		log.Warn("Cannot probe duration of %s for pricing: %v", audioPath, err)
		return b.ratePerMinute
	}
	return seconds / 60 * b.ratePerMinute
}

// detectLanguage trusts an explicit hint, otherwise detects from the
// transcript text.
func (b *RemoteBackend) detectLanguage(hint, text string) string {
	if normalized := normalizeHint(hint); normalized != "" {
		return normalized
	}
	if iso := whatlanggo.DetectLang(text).Iso6391(); iso != "" {
		return iso
	}
	return "auto"
}
