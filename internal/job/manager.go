package job

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
)

// Manager exclusively owns job records. All reads and writes are serialized
// under one mutex so every observer sees a consistent snapshot of
// (status, chunks, chunk statuses, progress, completed count).
//
// Storage is a TTL cache: entries expire MaxJobAge after creation and a
// janitor sweep every CleanupInterval evicts them, deleting their chunk
// files through the eviction hook. That cache janitor is the reaper.
type Manager struct {
	mu     sync.Mutex
	store  *gocache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithExpiry overrides job TTL and reaper interval (for testing).
func WithExpiry(maxAge, cleanupInterval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.store = gocache.New(maxAge, cleanupInterval)
	}
}

// NewManager creates a Manager with the production reaper settings.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  gocache.New(MaxJobAge, CleanupInterval),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.store.OnEvicted(func(id string, v any) {
		j, ok := v.(*Job)
		if !ok {
			return
		}
		chunk.Cleanup(j.Chunks)
		m.logger.Info("job reaped", "job", id, "status", j.Status)
	})
	return m
}

// CreateJob allocates a fresh job in the pending state and returns a
// snapshot of it.
func (m *Manager) CreateJob(cfg Config, meta Metadata) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	meta.CreatedAt = now
	j := &Job{
		ID:          uuid.NewString(),
		OwnerID:     cfg.UserID,
		Config:      cfg,
		Metadata:    meta,
		Status:      StatusPending,
		LastUpdated: now,
	}
	m.store.Set(j.ID, j, gocache.DefaultExpiration)

	m.logger.Info("job created",
		"job", j.ID,
		"mode", cfg.Mode.String(),
		"filename", meta.Filename,
		"size_bytes", meta.SizeBytes)
	return j.snapshot()
}

// InitializeChunks records the chunk list and allocates a same-length
// pending status slice. Must happen before any UpdateChunkStatus.
func (m *Manager) InitializeChunks(jobID string, chunks []chunk.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return err
	}

	now := m.now()
	j.Chunks = append([]chunk.Descriptor(nil), chunks...)
	j.ChunkStatuses = make([]ChunkStatus, len(chunks))
	for i := range j.ChunkStatuses {
		j.ChunkStatuses[i] = ChunkStatus{State: ChunkPending, LastUpdated: now}
	}
	j.Metadata.TotalChunks = len(chunks)
	j.recomputeProgress()
	j.LastUpdated = now
	return nil
}

// SetAudioDuration records the probed duration of the job's input audio.
func (m *Manager) SetAudioDuration(jobID string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return err
	}
	j.Metadata.AudioDuration = d
	j.LastUpdated = m.now()
	return nil
}

// GetJob returns a snapshot of the job, or nil when unknown or expired.
func (m *Manager) GetJob(jobID string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return nil
	}
	return j.snapshot()
}

// UpdateJobStatus transitions the job and records errMsg when non-empty.
// Entering a terminal state stamps completion time, computes processing
// time, and deletes the job's chunk files. Transitions out of a terminal
// state are ignored: terminal states are sticky.
func (m *Manager) UpdateJobStatus(jobID string, status Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return nil
	}

	now := m.now()
	j.Status = status
	if errMsg != "" {
		j.Error = errMsg
	}
	if status.Terminal() {
		completedAt := now
		j.Metadata.CompletedAt = &completedAt
		j.Metadata.ProcessingTime = completedAt.Sub(j.Metadata.CreatedAt)
		chunk.Cleanup(j.Chunks)
	}
	j.LastUpdated = now

	m.logger.Info("job status changed", "job", jobID, "status", status, "error", errMsg)
	return nil
}

// UpdateChunkStatus merges patch into the chunk's status and recomputes the
// job's completed count and progress.
func (m *Manager) UpdateChunkStatus(jobID string, index int, patch ChunkPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(j.ChunkStatuses) {
		return fmt.Errorf("chunk %d of job %s: %w", index, jobID, ErrInvalidChunkIndex)
	}
	if j.Status.Terminal() {
		// Terminal jobs are frozen; late worker updates are dropped.
		return nil
	}

	cs := &j.ChunkStatuses[index]
	if patch.State != nil {
		cs.State = *patch.State
	}
	if patch.RetryCount != nil {
		cs.RetryCount = *patch.RetryCount
	}
	if patch.WasSplit != nil {
		cs.WasSplit = *patch.WasSplit
	}
	if patch.Transcript != nil {
		cs.Transcript = *patch.Transcript
	}
	if patch.Error != nil {
		cs.Error = *patch.Error
	}
	cs.LastUpdated = m.now()

	j.recomputeProgress()
	j.LastUpdated = cs.LastUpdated
	return nil
}

// SetTranscript records the final assembled transcript.
func (m *Manager) SetTranscript(jobID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return err
	}
	if j.Status == StatusCancelled || j.Status == StatusFailed {
		// Never expose transcripts on cancelled or failed jobs.
		return nil
	}
	j.Transcript = text
	j.LastUpdated = m.now()
	return nil
}

// IncrementRetries bumps the job-wide retry counter and returns the new
// total. The caller enforces the MaxTotalRetries safeguard.
func (m *Manager) IncrementRetries(jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return 0, err
	}
	if j.Status.Terminal() {
		return j.TotalRetries, nil
	}
	j.TotalRetries++
	j.LastUpdated = m.now()
	return j.TotalRetries, nil
}

// IncrementAutoSplits bumps the job-wide auto-split counter and returns the
// new total. The caller enforces the MaxAutoSplits safeguard.
func (m *Manager) IncrementAutoSplits(jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return 0, err
	}
	if j.Status.Terminal() {
		return j.AutoSplits, nil
	}
	j.AutoSplits++
	j.LastUpdated = m.now()
	return j.AutoSplits, nil
}

// GetStatusResponse builds the polling response, or nil when the job is
// unknown. While transcribing with at least one chunk done, it estimates
// remaining time from elapsed time per completed chunk.
func (m *Manager) GetStatusResponse(jobID string) *StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return nil
	}

	resp := &StatusResponse{
		JobID:           j.ID,
		Status:          j.Status,
		Progress:        j.Progress,
		CompletedChunks: j.Completed,
		TotalChunks:     j.Metadata.TotalChunks,
		Metadata: ResponseMetadata{
			Filename:    j.Metadata.Filename,
			Duration:    j.Metadata.AudioDuration.Seconds(),
			Mode:        j.Config.Mode.String(),
			CreatedAt:   j.Metadata.CreatedAt,
			CompletedAt: j.Metadata.CompletedAt,
		},
		Transcript: j.Transcript,
		Error:      j.Error,
	}

	if j.Status == StatusTranscribing && j.Completed > 0 {
		elapsedMs := float64(m.now().Sub(j.Metadata.CreatedAt).Milliseconds())
		remaining := j.Metadata.TotalChunks - j.Completed
		resp.EstimatedTimeRemainingSeconds =
			int(math.Ceil(elapsedMs / float64(j.Completed) * float64(remaining) / 1000))
	}
	return resp
}

// ValidateOwnership reports whether userID may act on the job. Jobs created
// without an owner accept any user for backward compatibility.
func (m *Manager) ValidateOwnership(jobID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return false
	}
	return j.OwnerID == "" || j.OwnerID == userID
}

// Cancel flips the job to the cancelled terminal state. Workers observe the
// flag at every scheduling boundary; cancellation of an already-terminal
// job is a no-op.
func (m *Manager) Cancel(jobID string) error {
	return m.UpdateJobStatus(jobID, StatusCancelled, "")
}

// IsCancelled reports whether the job exists and is cancelled.
// Passed to the governor as its cancellation check.
func (m *Manager) IsCancelled(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.getLocked(jobID)
	if err != nil {
		return false
	}
	return j.Status == StatusCancelled
}

// DeleteJob removes the job; its chunk files are deleted by the eviction hook.
func (m *Manager) DeleteJob(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getLocked(jobID); err != nil {
		return err
	}
	m.store.Delete(jobID)
	return nil
}

// ClearAll drops every job without running eviction hooks. Test hook.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Flush()
}

// getLocked fetches the live job record. Must be called with m.mu held.
func (m *Manager) getLocked(jobID string) (*Job, error) {
	v, ok := m.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return v.(*Job), nil
}
