// Package engine wires the pipeline together: it accepts audio submissions,
// chunks them, fans chunks out to the processor under a per-job governor,
// assembles the final transcript, and publishes results through the job
// manager. This is the in-process API a host transport layer calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-transcribe-engine/internal/assemble"
	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/format"
	"github.com/alnah/go-transcribe-engine/internal/governor"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/lang"
	"github.com/alnah/go-transcribe-engine/internal/mode"
	"github.com/alnah/go-transcribe-engine/internal/processor"
)

// Submission validation errors.
var (
	// ErrEmptyAudio indicates a submission without audio bytes.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrInvalidConfig indicates a submission with an unusable configuration.
	ErrInvalidConfig = errors.New("invalid job configuration")
)

// Engine is the transcription job engine.
type Engine struct {
	manager *job.Manager
	chunker *chunk.Chunker
	proc    *processor.Processor
	logger  *slog.Logger

	wg sync.WaitGroup

	// newGovernor builds the per-job governor; injectable for tests.
	newGovernor func(m mode.Mode) *governor.Governor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGovernorFactory sets the per-job governor constructor (for testing).
func WithGovernorFactory(fn func(m mode.Mode) *governor.Governor) Option {
	return func(e *Engine) {
		e.newGovernor = fn
	}
}

// New creates an Engine from its collaborators.
func New(manager *job.Manager, chunker *chunk.Chunker, proc *processor.Processor, opts ...Option) *Engine {
	e := &Engine{
		manager: manager,
		chunker: chunker,
		proc:    proc,
		logger:  slog.Default(),
	}
	e.newGovernor = func(m mode.Mode) *governor.Governor {
		return governor.New(m, manager.IsCancelled, governor.WithLogger(e.logger))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit creates a job, chunks the audio synchronously, then starts
// transcription in the background and returns the job id. Chunking failures
// fail the job and are returned to the caller; transcription failures are
// observed later via GetStatus.
func (e *Engine) Submit(ctx context.Context, cfg job.Config, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if cfg.Mode.IsZero() {
		return "", fmt.Errorf("missing processing mode: %w", ErrInvalidConfig)
	}
	if err := lang.Validate(cfg.Language); err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}

	j := e.manager.CreateJob(cfg, job.Metadata{
		Filename:  filename,
		SizeBytes: int64(len(audio)),
	})

	_ = e.manager.UpdateJobStatus(j.ID, job.StatusChunking, "")
	res, err := e.chunker.ChunkAudio(ctx, audio, filename, cfg.Mode)
	if err != nil {
		_ = e.manager.UpdateJobStatus(j.ID, job.StatusFailed, err.Error())
		return "", fmt.Errorf("job %s: %w", j.ID, err)
	}
	_ = e.manager.SetAudioDuration(j.ID, res.TotalDuration)
	_ = e.manager.InitializeChunks(j.ID, res.Chunks)

	e.logger.Info("audio chunked",
		"job", j.ID,
		"chunks", res.TotalChunks,
		"audio_duration", format.Clock(res.TotalDuration))
	for _, d := range res.Chunks {
		e.logger.Debug("chunk ready", "job", j.ID, "chunk", d.String())
	}

	// Zero-duration audio yields an empty transcript immediately.
	if res.TotalChunks == 0 {
		_ = e.manager.SetTranscript(j.ID, "")
		_ = e.manager.UpdateJobStatus(j.ID, job.StatusCompleted, "")
		return j.ID, nil
	}

	_ = e.manager.UpdateJobStatus(j.ID, job.StatusTranscribing, "")

	// The job outlives the submission request.
	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go e.runJob(bg, j.ID, res)

	return j.ID, nil
}

// runJob drives one job from transcribing to a terminal state.
func (e *Engine) runJob(ctx context.Context, jobID string, res chunk.Result) {
	defer e.wg.Done()

	gov := e.newGovernor(res.Mode)
	defer gov.Shutdown()

	texts := make([]string, len(res.Chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range res.Chunks {
		i, desc := i, desc
		g.Go(func() error {
			text, err := e.proc.Process(gctx, jobID, desc, gov)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", desc.Index, err)
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, job.ErrJobCancelled) {
			// Cancel already moved the job to its terminal state.
			e.logger.Info("job cancelled mid-flight", "job", jobID)
			return
		}
		_ = e.manager.UpdateJobStatus(jobID, job.StatusFailed, err.Error())
		e.logger.Error("job failed", "job", jobID, "error", err.Error())
		return
	}

	_ = e.manager.UpdateJobStatus(jobID, job.StatusAssembling, "")
	final, err := assemble.Assemble(res.Chunks, texts, res.Mode)
	if err != nil {
		_ = e.manager.UpdateJobStatus(jobID, job.StatusFailed, err.Error())
		return
	}

	_ = e.manager.SetTranscript(jobID, final)
	_ = e.manager.UpdateJobStatus(jobID, job.StatusCompleted, "")

	var elapsed time.Duration
	if j := e.manager.GetJob(jobID); j != nil {
		elapsed = j.Metadata.ProcessingTime
	}
	stats := gov.Stats()
	e.logger.Info("job completed",
		"job", jobID,
		"chunks", res.TotalChunks,
		"processing_time", format.Elapsed(elapsed),
		"requests", stats.TotalRequests,
		"rate_limited", stats.RateLimited,
		"peak_concurrency", stats.PeakConcurrency)
}

// GetStatus returns the polling response for a job, or nil when unknown.
func (e *Engine) GetStatus(jobID string) *job.StatusResponse {
	return e.manager.GetStatusResponse(jobID)
}

// Cancel flips the job to cancelled; in-flight workers observe the flag at
// their next scheduling boundary.
func (e *Engine) Cancel(jobID string) error {
	return e.manager.Cancel(jobID)
}

// ValidateOwnership reports whether userID may act on the job.
func (e *Engine) ValidateOwnership(jobID, userID string) bool {
	return e.manager.ValidateOwnership(jobID, userID)
}

// Wait blocks until all background jobs have reached a terminal state.
// Intended for shutdown and tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}
