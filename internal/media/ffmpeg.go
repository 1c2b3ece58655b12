package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lekver/scribed/pkg/log"
)

// Normalizer converts arbitrary input media into the canonical audio form
// used by every transcription backend: mono, 16 kHz PCM WAV.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// DurationProber reports the duration of a media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	runner     CommandRunner
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		runner:     &execRunner{},
	}
}

// Normalize writes exactly one output file and never mutates the input.
// A failed first conversion is retried once with lenient error tolerance
// for malformed or ambiguous containers.
func (ff *FFmpeg) Normalize(ctx context.Context, inputPath, outputPath string) error {
	result, err := ff.runner.Run(ctx, ff.ffmpegCmd, normalizeArgs(inputPath, outputPath)...)
	if err == nil {
		return ff.checkOutput(outputPath, result.Stderr)
	}

	log.Warn("ffmpeg conversion of %s failed (exit %d), retrying with lenient decode", inputPath, result.ExitCode)

	fallback, err := ff.runner.Run(ctx, ff.ffmpegCmd, lenientNormalizeArgs(inputPath, outputPath)...)
	if err != nil {
		return &NormalizationError{
			Message: truncateDiagnostic(strings.TrimSpace(fallback.Stderr)),
			Err:     err,
		}
	}
	return ff.checkOutput(outputPath, fallback.Stderr)
}

func (ff *FFmpeg) checkOutput(outputPath, stderr string) error {
	if _, err := os.Stat(outputPath); err != nil {
		return &NormalizationError{
			Message: "conversion reported success but output file is missing: " + truncateDiagnostic(strings.TrimSpace(stderr)),
			Err:     err,
		}
	}
	return nil
}

// Duration reads the container duration via ffprobe.
func (ff *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ff.runner.Run(ctx, ff.ffprobeCmd, probeDurationArgs(path)...)
	if err != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", strings.TrimSpace(result.Stdout), err)
	}
	return seconds, nil
}

func normalizeArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// lenientNormalizeArgs tolerates broken containers: decode errors are
// ignored, timestamps regenerated, and the output format forced to WAV.
func lenientNormalizeArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-err_detect", "ignore_err",
		"-fflags", "+genpts+igndts",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outputPath,
	}
}

func probeDurationArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}
