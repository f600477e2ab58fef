package mode_test

// Notes:
// - The per-mode constants are part of the engine's external contract;
//   TestConfig_FrozenValues pins them exactly.
// - Backoff jitter is tested by injecting fixed u values rather than
//   sampling randomness.

import (
	"errors"
	"testing"
	"time"

	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// ---------------------------------------------------------------------------
// Parse - Mode name validation
// ---------------------------------------------------------------------------

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    mode.Mode
		wantErr bool
	}{
		{name: "balanced", input: "balanced", want: mode.Balanced},
		{name: "best quality", input: "best_quality", want: mode.BestQuality},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown", input: "turbo", wantErr: true},
		{name: "wrong case", input: "Balanced", wantErr: true},
		{name: "hyphenated variant", input: "best-quality", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mode.Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, mode.ErrInvalid) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalid", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMustParse_PanicsOnInvalid(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("MustParse(\"bogus\") did not panic")
		}
	}()
	mode.MustParse("bogus")
}

// ---------------------------------------------------------------------------
// Config - Frozen constant table
// ---------------------------------------------------------------------------

func TestConfig_FrozenValues(t *testing.T) {
	t.Parallel()

	balanced := mode.Balanced.Config()
	if balanced.ChunkDuration != 180*time.Second {
		t.Errorf("balanced chunk duration = %v, want 180s", balanced.ChunkDuration)
	}
	if balanced.Overlap != 0 {
		t.Errorf("balanced overlap = %v, want 0", balanced.Overlap)
	}
	if balanced.MaxConcurrency != 4 {
		t.Errorf("balanced concurrency = %d, want 4", balanced.MaxConcurrency)
	}
	if balanced.MaxRetries != 3 {
		t.Errorf("balanced retries = %d, want 3", balanced.MaxRetries)
	}
	if balanced.Backoff.Base != 2000*time.Millisecond || balanced.Backoff.Max != 10000*time.Millisecond {
		t.Errorf("balanced backoff base/max = %v/%v, want 2s/10s", balanced.Backoff.Base, balanced.Backoff.Max)
	}
	if balanced.Backoff.Multiplier != 2.5 || balanced.Backoff.Jitter != 0.3 {
		t.Errorf("balanced backoff multiplier/jitter = %v/%v, want 2.5/0.3",
			balanced.Backoff.Multiplier, balanced.Backoff.Jitter)
	}
	if balanced.SubChunkDuration != 90*time.Second {
		t.Errorf("balanced sub-chunk = %v, want 90s", balanced.SubChunkDuration)
	}

	best := mode.BestQuality.Config()
	if best.ChunkDuration != 600*time.Second {
		t.Errorf("best_quality chunk duration = %v, want 600s", best.ChunkDuration)
	}
	if best.Overlap != 15*time.Second {
		t.Errorf("best_quality overlap = %v, want 15s", best.Overlap)
	}
	if best.MaxConcurrency != 1 {
		t.Errorf("best_quality concurrency = %d, want 1", best.MaxConcurrency)
	}
	if best.MaxRetries != 2 {
		t.Errorf("best_quality retries = %d, want 2", best.MaxRetries)
	}
	if best.Backoff.Base != 5000*time.Millisecond || best.Backoff.Max != 10000*time.Millisecond {
		t.Errorf("best_quality backoff base/max = %v/%v, want 5s/10s", best.Backoff.Base, best.Backoff.Max)
	}
	if best.Backoff.Multiplier != 1 || best.Backoff.Jitter != 0.2 {
		t.Errorf("best_quality backoff multiplier/jitter = %v/%v, want 1/0.2",
			best.Backoff.Multiplier, best.Backoff.Jitter)
	}
	if best.SubChunkDuration != 300*time.Second {
		t.Errorf("best_quality sub-chunk = %v, want 300s", best.SubChunkDuration)
	}
}

// ---------------------------------------------------------------------------
// BackoffConfig.Delay - Delay curve and jitter
// ---------------------------------------------------------------------------

func TestBackoffConfig_Delay(t *testing.T) {
	t.Parallel()

	balanced := mode.Balanced.Config().Backoff
	best := mode.BestQuality.Config().Backoff

	tests := []struct {
		name    string
		cfg     mode.BackoffConfig
		attempt int
		u       float64
		want    time.Duration
	}{
		// Balanced: exponential 2000 -> 5000 -> 10000 (capped).
		{name: "balanced attempt 1 no jitter", cfg: balanced, attempt: 1, u: 0, want: 2000 * time.Millisecond},
		{name: "balanced attempt 2 no jitter", cfg: balanced, attempt: 2, u: 0, want: 5000 * time.Millisecond},
		{name: "balanced attempt 3 capped", cfg: balanced, attempt: 3, u: 0, want: 10000 * time.Millisecond},
		{name: "balanced positive jitter", cfg: balanced, attempt: 1, u: 1, want: 2600 * time.Millisecond},
		{name: "balanced negative jitter", cfg: balanced, attempt: 1, u: -1, want: 1400 * time.Millisecond},

		// Best-quality: linear 5000 -> 10000 (capped).
		{name: "best attempt 1 no jitter", cfg: best, attempt: 1, u: 0, want: 5000 * time.Millisecond},
		{name: "best attempt 2 no jitter", cfg: best, attempt: 2, u: 0, want: 10000 * time.Millisecond},
		{name: "best attempt 3 capped", cfg: best, attempt: 3, u: 0, want: 10000 * time.Millisecond},
		{name: "best positive jitter after cap", cfg: best, attempt: 2, u: 1, want: 12000 * time.Millisecond},

		// Defensive clamps.
		{name: "attempt below 1 treated as 1", cfg: balanced, attempt: 0, u: 0, want: 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.cfg.Delay(tt.attempt, tt.u)
			if got != tt.want {
				t.Errorf("Delay(%d, %v) = %v, want %v", tt.attempt, tt.u, got, tt.want)
			}
		})
	}
}

func TestBackoffConfig_Delay_NeverNegative(t *testing.T) {
	t.Parallel()

	cfg := mode.BackoffConfig{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 2}
	if got := cfg.Delay(1, -1); got < 0 {
		t.Errorf("Delay with oversized negative jitter = %v, want >= 0", got)
	}
}
