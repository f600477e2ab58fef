// Package media abstracts the audio probing and extraction operations the
// engine needs. The default implementation shells out to FFmpeg; tests
// substitute fakes through the Tool interface.
package media

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for media operations.
var (
	// ErrNotFound indicates the ffmpeg binary could not be located.
	ErrNotFound = errors.New("ffmpeg not found")

	// ErrProbeFailed indicates the audio duration could not be determined.
	ErrProbeFailed = errors.New("audio probe failed")

	// ErrExtractFailed indicates a time-range extraction failed.
	ErrExtractFailed = errors.New("audio extract failed")
)

// Tool probes and slices audio files.
//
// Extract must be idempotent with respect to outputPath: re-running the same
// extraction overwrites the previous output. Probe failures are never retried
// by callers.
type Tool interface {
	// ProbeDuration reports the duration of the audio file at path.
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)

	// Extract writes the range [start, start+duration) of inputPath to
	// outputPath as mono ~16kHz compressed audio.
	Extract(ctx context.Context, inputPath string, start, duration time.Duration, outputPath string) error

	// HashFile returns the lowercase SHA-256 hex digest of the file bytes.
	HashFile(path string) (string, error)
}
