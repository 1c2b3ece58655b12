package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lekver/scribed/internal/media"
	"github.com/lekver/scribed/pkg/file"
	"github.com/lekver/scribed/pkg/log"
)

// LocalBackend transcribes with a self-hosted whisper.cpp model. The model
// file is resolved lazily, at most once per process, and shared across
// calls; transcription itself is a per-call CLI invocation. Cost is
// always zero.
type LocalBackend struct {
	whisperBin string
	modelSpec  string
	runner     media.CommandRunner

	mu        sync.RWMutex
	modelFile string
	initGroup singleflight.Group
}

// NewLocalBackend builds the local backend. modelSpec is either a model
// file or a directory containing one.
func NewLocalBackend(whisperBin, modelSpec string) *LocalBackend {
	return &LocalBackend{
		whisperBin: whisperBin,
		modelSpec:  modelSpec,
		runner:     media.NewExecRunner(),
	}
}

func (b *LocalBackend) Name() string { return "local" }

// whisperOutput mirrors the relevant parts of whisper.cpp's -oj JSON.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (b *LocalBackend) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	model, err := b.model()
	if err != nil {
		return Result{}, &TranscriptionError{Backend: b.Name(), Message: err.Error(), Err: err}
	}

	outBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	args := []string{
		"-m", model,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if hint := normalizeHint(opts.LanguageHint); hint != "" {
		args = append(args, "-l", hint)
	}

	cmdResult, err := b.runner.Run(ctx, b.whisperBin, args...)
	if err != nil {
		return Result{}, &TranscriptionError{
			Backend: b.Name(),
			Message: truncateDiagnostic(strings.TrimSpace(cmdResult.Stderr)),
			Err:     err,
		}
	}

	jsonPath := file.ReplaceExt(audioPath, ".json")
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return Result{}, &TranscriptionError{
			Backend: b.Name(),
			Message: "model finished but segment output is missing",
			Err:     err,
		}
	}
	defer func() {
		if err := os.Remove(jsonPath); err != nil {
			log.Warn("Failed to remove segment output %s: %v", jsonPath, err)
		}
	}()

	var output whisperOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return Result{}, &TranscriptionError{
			Backend: b.Name(),
			Message: "cannot parse segment output",
			Err:     err,
		}
	}

	lines := make([]string, 0, len(output.Transcription))
	for _, segment := range output.Transcription {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		if opts.Timestamps {
			start := FormatTimestamp(float64(segment.Offsets.From) / 1000)
			lines = append(lines, fmt.Sprintf("[%s] %s", start, text))
		} else {
			lines = append(lines, text)
		}
	}

	detected := normalizeHint(opts.LanguageHint)
	if detected == "" {
		detected = output.Result.Language
	}

	return Result{
		Text:             strings.Join(lines, "\n"),
		DetectedLanguage: detected,
		Cost:             0,
	}, nil
}

// model resolves and caches the model file. Initialization runs at most
// once even under concurrent calls.
func (b *LocalBackend) model() (string, error) {
	b.mu.RLock()
	cached := b.modelFile
	b.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	v, err, _ := b.initGroup.Do("model", func() (any, error) {
		b.mu.RLock()
		cached := b.modelFile
		b.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		resolved, err := resolveModelFile(b.modelSpec)
		if err != nil {
			return nil, err
		}
		log.Info("Loaded local transcription model %s", resolved)

		b.mu.Lock()
		b.modelFile = resolved
		b.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// resolveModelFile accepts a model file path directly, or picks the first
// .bin model inside a directory.
func resolveModelFile(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(spec)
	if err != nil {
		return "", fmt.Errorf("cannot access model path %s: %w", spec, err)
	}
	if !info.IsDir() {
		return spec, nil
	}

	entries, err := os.ReadDir(spec)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory %s: %w", spec, err)
	}

	models := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".bin") {
			models = append(models, entry.Name())
		}
	}
	if len(models) == 0 {
		return "", fmt.Errorf("no .bin model found in %s", spec)
	}
	sort.Strings(models)
	return filepath.Join(spec, models[0]), nil
}

func normalizeHint(hint string) string {
	hint = strings.TrimSpace(strings.ToLower(hint))
	if hint == "auto" {
		return ""
	}
	return hint
}
