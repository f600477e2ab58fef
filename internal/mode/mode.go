// Package mode defines the closed set of processing modes and the
// per-mode constants that drive chunking, concurrency, and retry behavior.
// The values are part of the engine's external contract and must not drift.
package mode

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalid indicates an unrecognized processing mode name.
var ErrInvalid = errors.New("invalid processing mode")

// Mode names accepted by Parse.
const (
	NameBalanced    = "balanced"
	NameBestQuality = "best_quality"
)

// Mode represents a validated processing mode.
// Zero value is invalid; use Parse or the pre-parsed constants.
type Mode struct {
	name string
}

// Compile-time interface compliance check.
var _ fmt.Stringer = Mode{}

// Pre-parsed mode constants for use in code.
var (
	// Balanced favors throughput: short chunks, no overlap, 4-way parallelism.
	Balanced = Mode{name: NameBalanced}

	// BestQuality favors accuracy: long chunks with a 15s overlap stitched
	// back together by fuzzy matching, strictly serial requests.
	BestQuality = Mode{name: NameBestQuality}
)

// Parse validates and parses a processing mode name.
// Returns ErrInvalid if the name is not recognized.
func Parse(s string) (Mode, error) {
	switch s {
	case NameBalanced:
		return Balanced, nil
	case NameBestQuality:
		return BestQuality, nil
	default:
		return Mode{}, fmt.Errorf("unknown mode %q (use %q or %q): %w",
			s, NameBalanced, NameBestQuality, ErrInvalid)
	}
}

// MustParse parses a mode name, panicking if invalid.
// Use only for compile-time constants and tests.
func MustParse(s string) Mode {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String returns the mode name, or empty string for the zero value.
func (m Mode) String() string {
	return m.name
}

// IsZero reports whether m is the invalid zero value.
func (m Mode) IsZero() bool {
	return m.name == ""
}

// BackoffConfig holds retry delay parameters for one mode.
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64 // >1 exponential, otherwise linear
	Jitter     float64 // fractional jitter amplitude, e.g. 0.3 for ±30%
}

// Delay computes the backoff before retry number attempt (1-based).
// u must be uniform in [-1, 1]; it is injected so tests can pin the jitter.
func (b BackoffConfig) Delay(attempt int, u float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d float64
	if b.Multiplier > 1 {
		d = float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	} else {
		d = float64(b.Base) * float64(attempt)
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	d = math.Floor(d + d*b.Jitter*u)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Config holds every mode-dependent constant.
type Config struct {
	// ChunkDuration is the target length of each chunk.
	ChunkDuration time.Duration

	// Overlap is the duplicated audio at chunk boundaries (0 = none).
	Overlap time.Duration

	// MaxConcurrency bounds simultaneous provider requests per job.
	MaxConcurrency int

	// MaxRetries is the per-chunk retry budget.
	MaxRetries int

	// Backoff drives the delay between rate-limited retries.
	Backoff BackoffConfig

	// SubChunkDuration is the sub-chunk length used by auto-split.
	SubChunkDuration time.Duration
}

// configs is the frozen per-mode table. Chunk/overlap durations, retry
// budgets, and backoff curves are externally observable and must match the
// documented values exactly.
var configs = map[string]Config{
	NameBalanced: {
		ChunkDuration:  180 * time.Second,
		Overlap:        0,
		MaxConcurrency: 4,
		MaxRetries:     3,
		Backoff: BackoffConfig{
			Base:       2000 * time.Millisecond,
			Max:        10000 * time.Millisecond,
			Multiplier: 2.5,
			Jitter:     0.3,
		},
		SubChunkDuration: 90 * time.Second,
	},
	NameBestQuality: {
		ChunkDuration:  600 * time.Second,
		Overlap:        15 * time.Second,
		MaxConcurrency: 1,
		MaxRetries:     2,
		Backoff: BackoffConfig{
			Base:       5000 * time.Millisecond,
			Max:        10000 * time.Millisecond,
			Multiplier: 1,
			Jitter:     0.2,
		},
		SubChunkDuration: 300 * time.Second,
	},
}

// Config returns the constant table entry for m.
// Panics on the zero value: modes must go through Parse first.
func (m Mode) Config() Config {
	cfg, ok := configs[m.name]
	if !ok {
		panic(fmt.Sprintf("mode: Config called on invalid mode %q", m.name))
	}
	return cfg
}
