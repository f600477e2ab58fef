// Package processor transcribes individual chunks: it drives the per-chunk
// retry loop through the governor and, when a chunk keeps failing, performs
// an emergency auto-split into shorter sub-chunks bounded by the job-wide
// safeguards.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/governor"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/media"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// ErrSubChunkFailed indicates a failure inside auto-split. Sub-chunks are
// not retried or split again; this is terminal for the parent chunk.
var ErrSubChunkFailed = errors.New("sub-chunk transcription failed")

// Transcriber converts one audio file to text. The engine injects the
// provider implementation; tests inject fakes.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, cfg job.Config) (string, error)
}

// fileRemover removes sub-chunk files (injectable for tests).
type fileRemover interface {
	Remove(name string) error
}

type osFileRemover struct{}

func (osFileRemover) Remove(name string) error { return os.Remove(name) }

// Processor runs chunks through the governor and the provider.
type Processor struct {
	manager    *job.Manager
	tool       media.Tool
	transcribe Transcriber
	scratchDir string
	logger     *slog.Logger

	// Injectable dependencies (defaults to OS implementations).
	files fileRemover
	now   func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFileRemover sets the sub-chunk file remover (for testing).
func WithFileRemover(f fileRemover) Option {
	return func(p *Processor) {
		p.files = f
	}
}

// WithClock sets the time source used for sub-chunk file names (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New creates a Processor.
func New(manager *job.Manager, tool media.Tool, transcribe Transcriber, scratchDir string, opts ...Option) *Processor {
	p := &Processor{
		manager:    manager,
		tool:       tool,
		transcribe: transcribe,
		scratchDir: scratchDir,
		logger:     slog.Default(),
		files:      osFileRemover{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process transcribes one chunk, retrying up to the mode's budget and
// auto-splitting on exhaustion. On success the chunk status is completed
// with its transcript recorded; on failure it is failed with the error.
func (p *Processor) Process(ctx context.Context, jobID string, desc chunk.Descriptor, gov *governor.Governor) (string, error) {
	j := p.manager.GetJob(jobID)
	if j == nil {
		return "", fmt.Errorf("processing chunk %d: %w", desc.Index, job.ErrJobNotFound)
	}
	cfg := j.Config
	modeCfg := cfg.Mode.Config()

	// A job whose retry budget is already spent gets no further attempts.
	if j.TotalRetries >= job.MaxTotalRetries {
		return "", p.failChunk(jobID, desc.Index, job.ErrMaxRetriesExceeded)
	}

	var lastErr error
	for attempt := 1; attempt <= modeCfg.MaxRetries; attempt++ {
		if p.manager.IsCancelled(jobID) {
			return "", p.failChunk(jobID, desc.Index, job.ErrJobCancelled)
		}

		state := job.ChunkInProgress
		if attempt > 1 {
			state = job.ChunkRetrying
		}
		retries := attempt - 1
		_ = p.manager.UpdateChunkStatus(jobID, desc.Index, job.ChunkPatch{
			State:      &state,
			RetryCount: &retries,
		})

		reqID := fmt.Sprintf("%s-chunk-%d-attempt-%d", jobID, desc.Index, attempt)
		text, err := gov.Enqueue(ctx, reqID, jobID, desc.Index, func() (string, error) {
			return p.transcribe.Transcribe(ctx, desc.Path, cfg)
		}, desc.Index)

		// Re-check after the suspension: cancel may have landed mid-request.
		if p.manager.IsCancelled(jobID) {
			return "", p.failChunk(jobID, desc.Index, job.ErrJobCancelled)
		}
		if err == nil {
			return text, p.completeChunk(jobID, desc.Index, text)
		}
		if errors.Is(err, job.ErrJobCancelled) {
			return "", p.failChunk(jobID, desc.Index, job.ErrJobCancelled)
		}

		lastErr = err
		total, rerr := p.manager.IncrementRetries(jobID)
		if rerr != nil {
			return "", rerr
		}
		p.logger.Warn("chunk attempt failed",
			"job", jobID,
			"chunk", desc.Index,
			"attempt", attempt,
			"error", err.Error())
		if total >= job.MaxTotalRetries {
			return "", p.failChunk(jobID, desc.Index, job.ErrMaxRetriesExceeded)
		}
	}

	// Retry budget exhausted: subdivide the chunk and try the pieces.
	text, err := p.autoSplit(ctx, jobID, desc, gov, cfg, modeCfg, lastErr)
	if err != nil {
		return "", p.failChunk(jobID, desc.Index, err)
	}
	return text, p.completeChunk(jobID, desc.Index, text)
}

// autoSplit subdivides a failing chunk into sub-chunks extracted from the
// parent chunk file and transcribes them sequentially at elevated priority.
// Sub-chunk files never outlive this call.
func (p *Processor) autoSplit(ctx context.Context, jobID string, desc chunk.Descriptor, gov *governor.Governor, cfg job.Config, modeCfg mode.Config, cause error) (string, error) {
	j := p.manager.GetJob(jobID)
	if j == nil {
		return "", job.ErrJobNotFound
	}
	if j.AutoSplits >= job.MaxAutoSplits {
		return "", job.ErrMaxSplitsExceeded
	}
	if j.TotalRetries >= job.MaxTotalRetries {
		return "", job.ErrMaxRetriesExceeded
	}

	state := job.ChunkSplitting
	wasSplit := true
	_ = p.manager.UpdateChunkStatus(jobID, desc.Index, job.ChunkPatch{
		State:    &state,
		WasSplit: &wasSplit,
	})
	if _, err := p.manager.IncrementAutoSplits(jobID); err != nil {
		return "", err
	}

	sub := modeCfg.SubChunkDuration
	total := desc.Duration()
	n := int((total + sub - 1) / sub)
	p.logger.Info("auto-splitting chunk",
		"job", jobID,
		"chunk", desc.Index,
		"sub_chunks", n,
		"cause", cause.Error())

	var subPaths []string
	cleanup := func() {
		for _, path := range subPaths {
			_ = p.files.Remove(path)
		}
	}

	texts := make([]string, 0, n)
	retries := j.TotalRetries
	for i := 0; i < n; i++ {
		if p.manager.IsCancelled(jobID) {
			cleanup()
			return "", job.ErrJobCancelled
		}
		// Each sub-chunk attempt spends retry budget too; stop before
		// starting one the job can no longer afford.
		if retries >= job.MaxTotalRetries {
			cleanup()
			return "", job.ErrMaxRetriesExceeded
		}

		// Offsets are relative to the parent chunk file, not the source audio.
		start := time.Duration(i) * sub
		dur := min(sub, total-start)
		subPath := filepath.Join(p.scratchDir,
			fmt.Sprintf("subchunk_%s_%d_%d_%d.ogg", jobID, desc.Index, i, p.now().UnixMilli()))
		if err := p.tool.Extract(ctx, desc.Path, start, dur, subPath); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: extracting sub-chunk %d: %v", ErrSubChunkFailed, i, err)
		}
		subPaths = append(subPaths, subPath)

		reqID := fmt.Sprintf("%s-chunk-%d-sub-%d", jobID, desc.Index, i)
		text, err := gov.Enqueue(ctx, reqID, jobID, desc.Index, func() (string, error) {
			return p.transcribe.Transcribe(ctx, subPath, cfg)
		}, governor.SubChunkPriorityBase+desc.Index)

		updated, rerr := p.manager.IncrementRetries(jobID)
		if rerr != nil {
			cleanup()
			return "", rerr
		}
		retries = updated
		if err != nil {
			cleanup()
			if errors.Is(err, job.ErrJobCancelled) {
				return "", job.ErrJobCancelled
			}
			return "", fmt.Errorf("%w: sub-chunk %d: %v", ErrSubChunkFailed, i, err)
		}
		texts = append(texts, text)
	}

	cleanup()
	return joinNonEmpty(texts), nil
}

// completeChunk records the transcript and marks the chunk completed.
func (p *Processor) completeChunk(jobID string, index int, text string) error {
	state := job.ChunkCompleted
	return p.manager.UpdateChunkStatus(jobID, index, job.ChunkPatch{
		State:      &state,
		Transcript: &text,
	})
}

// failChunk marks the chunk failed and returns the causing error.
func (p *Processor) failChunk(jobID string, index int, cause error) error {
	state := job.ChunkFailed
	msg := cause.Error()
	_ = p.manager.UpdateChunkStatus(jobID, index, job.ChunkPatch{
		State: &state,
		Error: &msg,
	})
	return cause
}

// joinNonEmpty joins texts with single spaces, skipping empty entries.
func joinNonEmpty(texts []string) string {
	out := ""
	for _, t := range texts {
		if t == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += t
	}
	return out
}
