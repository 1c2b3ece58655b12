package transcribe

import (
	"context"
	"fmt"
)

// Options configures one transcription call.
type Options struct {
	// LanguageHint is an ISO language code, or "auto"/"" for detection.
	LanguageHint string
	// Timestamps requests per-segment [HH:MM:SS,mmm] markers where the
	// backend supports them.
	Timestamps bool
}

// Result is a complete transcription. Backends never return partial
// results: a failure yields no Result at all.
type Result struct {
	Text             string
	DetectedLanguage string
	Cost             float64
}

// Backend is an interchangeable transcription implementation operating on
// canonical mono/16kHz audio.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error)
}

// TranscriptionError reports a backend-specific failure.
type TranscriptionError struct {
	Backend string
	Message string
	Err     error
}

func (e *TranscriptionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s transcription: %s", e.Backend, e.Message)
}

func (e *TranscriptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthenticationError reports a missing or rejected credential for the
// remote backend.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e == nil {
		return ""
	}
	return "authentication: " + e.Message
}

const maxDiagnosticLen = 2000

func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	return s[:maxDiagnosticLen] + "... (truncated)"
}
