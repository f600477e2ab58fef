// Package job owns the transcription job data model and its lifecycle
// manager: state transitions, per-chunk progress accounting, cancellation,
// and age-based reaping of stale jobs and their on-disk chunk files.
package job

import (
	"time"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// Job safeguards. Breaching a safeguard is a fatal job error.
const (
	// MaxTotalRetries caps retries across all chunks of one job.
	MaxTotalRetries = 20

	// MaxAutoSplits caps emergency chunk subdivisions per job.
	MaxAutoSplits = 2

	// MaxJobAge is how long a job record (and its files) may live.
	MaxJobAge = 2 * time.Hour

	// CleanupInterval is how often the reaper scans for stale jobs.
	CleanupInterval = 5 * time.Minute
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses. Completed, Failed, and Cancelled are terminal: once
// entered, no job field changes except removal by the reaper.
const (
	StatusPending      Status = "pending"
	StatusChunking     Status = "chunking"
	StatusTranscribing Status = "transcribing"
	StatusAssembling   Status = "assembling"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ChunkState is the processing state of one chunk.
type ChunkState string

// Chunk states. Completed and Failed are terminal for the chunk.
const (
	ChunkPending    ChunkState = "pending"
	ChunkInProgress ChunkState = "in_progress"
	ChunkRetrying   ChunkState = "retrying"
	ChunkSplitting  ChunkState = "splitting"
	ChunkCompleted  ChunkState = "completed"
	ChunkFailed     ChunkState = "failed"
)

// ChunkStatus tracks the mutable processing state of one chunk.
type ChunkStatus struct {
	State       ChunkState
	RetryCount  int
	WasSplit    bool
	LastUpdated time.Time
	Transcript  string // set once the chunk completes
	Error       string // set when the chunk fails
}

// ChunkPatch is a partial ChunkStatus update; nil fields are left unchanged.
type ChunkPatch struct {
	State      *ChunkState
	RetryCount *int
	WasSplit   *bool
	Transcript *string
	Error      *string
}

// Config is the per-job transcription configuration supplied by the host.
type Config struct {
	Mode        mode.Mode
	Model       string
	APIKey      string // opaque credential handle for the provider
	Language    string // ISO 639-1 base code; "auto" or empty = provider auto-detect
	Temperature *float64
	Prompt      string
	UserID      string
	ShouldMeter bool
}

// Metadata is the immutable description of a job's input, plus completion
// timestamps filled in on terminal transition.
type Metadata struct {
	Filename       string
	SizeBytes      int64
	AudioDuration  time.Duration
	TotalChunks    int
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ProcessingTime time.Duration
}

// Job is one transcription job record. Instances handed out by the Manager
// are snapshots; all mutation goes through Manager methods.
type Job struct {
	ID            string
	OwnerID       string
	Config        Config
	Metadata      Metadata
	Chunks        []chunk.Descriptor
	ChunkStatuses []ChunkStatus
	Status        Status
	Progress      int // floor(completed/total*100), 0 when no chunks
	Completed     int // count of chunks in ChunkCompleted
	Transcript    string
	Error         string
	TotalRetries  int
	AutoSplits    int
	LastUpdated   time.Time
}

// snapshot returns a copy safe to hand outside the manager's lock.
func (j *Job) snapshot() *Job {
	cp := *j
	cp.Chunks = append([]chunk.Descriptor(nil), j.Chunks...)
	cp.ChunkStatuses = append([]ChunkStatus(nil), j.ChunkStatuses...)
	if j.Metadata.CompletedAt != nil {
		t := *j.Metadata.CompletedAt
		cp.Metadata.CompletedAt = &t
	}
	return &cp
}

// recomputeProgress re-derives the completed count and progress percentage
// from chunk states. Called after every chunk status mutation.
func (j *Job) recomputeProgress() {
	completed := 0
	for _, cs := range j.ChunkStatuses {
		if cs.State == ChunkCompleted {
			completed++
		}
	}
	j.Completed = completed
	if j.Metadata.TotalChunks > 0 {
		j.Progress = completed * 100 / j.Metadata.TotalChunks
	} else {
		j.Progress = 0
	}
}

// StatusResponse is the polling-status shape returned to the host.
// Optional fields are omitted when not applicable.
type StatusResponse struct {
	JobID                         string           `json:"job_id"`
	Status                        Status           `json:"status"`
	Progress                      int              `json:"progress"`
	CompletedChunks               int              `json:"completed_chunks"`
	TotalChunks                   int              `json:"total_chunks"`
	Metadata                      ResponseMetadata `json:"metadata"`
	Transcript                    string           `json:"transcript,omitempty"`
	Error                         string           `json:"error,omitempty"`
	EstimatedTimeRemainingSeconds int              `json:"estimated_time_remaining_seconds,omitempty"`
}

// ResponseMetadata is the metadata block of a StatusResponse.
type ResponseMetadata struct {
	Filename    string     `json:"filename"`
	Duration    float64    `json:"duration"` // seconds
	Mode        string     `json:"mode"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
