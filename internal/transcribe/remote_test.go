package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProber struct {
	seconds float64
	err     error
}

func (p *staticProber) Duration(_ context.Context, _ string) (float64, error) {
	return p.seconds, p.err
}

func writeAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, os.WriteFile(path, []byte("wav"), 0o644))
	return path
}

func TestRemoteTranscribeRequiresAPIKey(t *testing.T) {
	b := NewRemoteBackend("https://api.example.com/v1", "", 0.006, &staticProber{})

	_, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{})
	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
}

func TestRemoteTranscribeSuccess(t *testing.T) {
	var gotAuth, gotFormat, gotLanguage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotAuth = r.Header.Get("Authorization")
		gotFormat = r.FormValue("response_format")
		gotLanguage = r.FormValue("language")
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		_, _ = w.Write([]byte("This is the transcribed English text of the recording.\n"))
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL, "sk-test", 0.006, &staticProber{seconds: 120})

	result, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{LanguageHint: "en", Timestamps: true})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "srt", gotFormat)
	assert.Equal(t, "en", gotLanguage)
	assert.Equal(t, "This is the transcribed English text of the recording.", result.Text)
	assert.Equal(t, "en", result.DetectedLanguage)
	assert.InDelta(t, 0.012, result.Cost, 1e-9)
}

func TestRemoteTranscribeDetectsLanguageFromText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("This is a fairly long sentence written entirely in the English language."))
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL, "sk-test", 0.006, &staticProber{seconds: 60})

	result, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, "en", result.DetectedLanguage)
}

func TestRemoteTranscribeRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "invalid key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL, "sk-bad", 0.006, &staticProber{})

	_, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{})
	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
}

func TestRemoteTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "whisper is on fire", http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewRemoteBackend(server.URL, "sk-test", 0.006, &staticProber{})

	_, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{})
	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "HTTP 500")
	assert.Contains(t, terr.Message, "whisper is on fire")
}

func TestRemoteCostFallsBackToMinuteFloor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	prober := &staticProber{err: errors.New("probe failed")}
	b := NewRemoteBackend(server.URL, "sk-test", 0.006, prober)

	result, err := b.Transcribe(context.Background(), writeAudioFile(t), Options{LanguageHint: "en"})
	require.NoError(t, err)
	assert.Equal(t, 0.006, result.Cost)
}
