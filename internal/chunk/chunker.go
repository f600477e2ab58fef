// Package chunk turns an uploaded audio blob into an ordered list of on-disk
// chunk files, applying the mode's slicing and overlap rules. Chunk files are
// owned by the job that requested them; the caller is responsible for cleanup.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alnah/go-transcribe-engine/internal/format"
	"github.com/alnah/go-transcribe-engine/internal/media"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// Sentinel errors for chunking failures. Both are fatal to the job.
var (
	// ErrProbeAudio indicates the input audio duration could not be probed.
	ErrProbeAudio = errors.New("failed to probe audio")

	// ErrExtractChunk indicates a chunk could not be extracted.
	ErrExtractChunk = errors.New("failed to extract chunk")
)

// Descriptor describes one extracted chunk of the source audio.
type Descriptor struct {
	Index        int           // Zero-based index for ordering.
	StartTime    time.Duration // Start timestamp in the source audio.
	EndTime      time.Duration // End timestamp in the source audio.
	Path         string        // Absolute path to the chunk file.
	Hash         string        // SHA-256 hex digest of the chunk file bytes.
	HasOverlap   bool          // Whether the chunk ends with duplicated audio.
	OverlapStart time.Duration // Start of the duplicated region; only meaningful when HasOverlap.
}

// Duration returns the length of this chunk.
func (d Descriptor) Duration() time.Duration {
	return d.EndTime - d.StartTime
}

// String returns a human-readable representation for logging.
func (d Descriptor) String() string {
	return fmt.Sprintf("chunk %d: %s", d.Index, format.Range(d.StartTime, d.EndTime))
}

// Result is the outcome of chunking one audio input.
type Result struct {
	Chunks        []Descriptor
	TotalDuration time.Duration
	Mode          mode.Mode
	TotalChunks   int
}

// Chunker splits audio buffers into chunk files inside a scratch directory.
type Chunker struct {
	tool       media.Tool
	scratchDir string

	// Injectable dependencies (defaults to OS implementations).
	files fileWriter
	now   func() time.Time
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithFileWriter sets the file writer (for testing).
func WithFileWriter(f fileWriter) Option {
	return func(c *Chunker) {
		c.files = f
	}
}

// WithClock sets the time source used for scratch file names (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Chunker) {
		c.now = now
	}
}

// New creates a Chunker writing its files under scratchDir.
func New(tool media.Tool, scratchDir string, opts ...Option) *Chunker {
	c := &Chunker{
		tool:       tool,
		scratchDir: scratchDir,
		files:      osFileWriter{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkAudio writes audio to a scratch file, probes its duration, and slices
// it into mode-sized chunks. The scratch input file is removed on every exit
// path; chunk files survive and belong to the caller.
//
// Zero-duration audio yields an empty Result without error. Audio shorter
// than the mode's chunk duration yields exactly one chunk without overlap.
func (c *Chunker) ChunkAudio(ctx context.Context, audio []byte, filename string, m mode.Mode) (Result, error) {
	inputPath := filepath.Join(c.scratchDir,
		fmt.Sprintf("input_%d_%s", c.now().UnixMilli(), filepath.Base(filename)))
	if err := c.files.WriteFile(inputPath, audio, 0600); err != nil {
		return Result{}, fmt.Errorf("failed to write scratch input: %w", err)
	}
	defer func() { _ = c.files.Remove(inputPath) }() // best-effort; scratch input never outlives chunking

	total, err := c.tool.ProbeDuration(ctx, inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProbeAudio, err)
	}

	cfg := m.Config()
	chunks, err := c.slice(ctx, inputPath, total, m, cfg)
	if err != nil {
		cleanupFiles(c.files, chunks)
		return Result{}, err
	}

	return Result{
		Chunks:        chunks,
		TotalDuration: total,
		Mode:          m,
		TotalChunks:   len(chunks),
	}, nil
}

// slice extracts the chunk files for the given total duration.
func (c *Chunker) slice(ctx context.Context, inputPath string, total time.Duration, m mode.Mode, cfg mode.Config) ([]Descriptor, error) {
	var chunks []Descriptor

	for start, index := time.Duration(0), 0; start < total; index++ {
		end := min(start+cfg.ChunkDuration, total)

		chunkPath := filepath.Join(c.scratchDir,
			fmt.Sprintf("chunk_%d_%d.ogg", index, c.now().UnixMilli()))
		if err := c.tool.Extract(ctx, inputPath, start, end-start, chunkPath); err != nil {
			return chunks, fmt.Errorf("%w: %v", ErrExtractChunk, err)
		}

		hash, err := c.tool.HashFile(chunkPath)
		if err != nil {
			return chunks, fmt.Errorf("%w: %v", ErrExtractChunk, err)
		}

		d := Descriptor{
			Index:     index,
			StartTime: start,
			EndTime:   end,
			Path:      chunkPath,
			Hash:      hash,
		}
		// Only best-quality chunks carry overlap, and never the final one.
		if m == mode.BestQuality && end < total {
			d.HasOverlap = true
			d.OverlapStart = end - cfg.Overlap
		}
		chunks = append(chunks, d)

		if d.HasOverlap {
			start = end - cfg.Overlap
		} else {
			start = end
		}
	}

	return chunks, nil
}

// Cleanup removes all chunk files. Removal failures are ignored: the files
// are ephemeral and may already be gone.
func Cleanup(chunks []Descriptor) {
	cleanupFiles(osFileWriter{}, chunks)
}

func cleanupFiles(files fileWriter, chunks []Descriptor) {
	for _, ch := range chunks {
		_ = files.Remove(ch.Path)
	}
}
