package job

import "errors"

// Sentinel errors for job operations.
var (
	// ErrJobNotFound indicates a lookup by unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidChunkIndex indicates a chunk index out of range.
	// This is a programmer error and fatal to the job.
	ErrInvalidChunkIndex = errors.New("invalid chunk index")

	// ErrJobCancelled surfaces to every worker of a cancelled job.
	// Partial transcripts are never exposed once this fires.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrMaxRetriesExceeded indicates the per-job retry safeguard was breached.
	// The message is user-facing.
	ErrMaxRetriesExceeded = errors.New("Maximum total retries (20) exceeded for this job")

	// ErrMaxSplitsExceeded indicates the per-job auto-split safeguard was breached.
	// The message is user-facing.
	ErrMaxSplitsExceeded = errors.New("Maximum auto-splits (2) exceeded for this job")
)
