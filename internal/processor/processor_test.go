package processor_test

// Notes:
// - A scripted transcriber keys its behavior off the audio path, so parent
//   chunks and sub-chunks ("subchunk_" prefix) can fail and succeed
//   independently within one scenario.
// - The governor is real but deterministic: zero jitter and retry timers
//   that fire immediately from a goroutine.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/governor"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/media"
	"github.com/alnah/go-transcribe-engine/internal/mode"
	"github.com/alnah/go-transcribe-engine/internal/processor"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// scriptedTranscriber records calls and delegates to fn.
type scriptedTranscriber struct {
	mu    sync.Mutex
	calls []string
	fn    func(path string, call int) (string, error)
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, path string, _ job.Config) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, path)
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(path, n)
}

func (s *scriptedTranscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// extractTool records Extract calls; probing and hashing are unused here.
type extractTool struct {
	mu       sync.Mutex
	extracts []extractCall
	err      error
}

type extractCall struct {
	input  string
	start  time.Duration
	dur    time.Duration
	output string
}

var _ media.Tool = (*extractTool)(nil)

func (f *extractTool) ProbeDuration(context.Context, string) (time.Duration, error) {
	return 0, errors.New("not used")
}

func (f *extractTool) Extract(_ context.Context, input string, start, dur time.Duration, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.extracts = append(f.extracts, extractCall{input, start, dur, output})
	return nil
}

func (f *extractTool) HashFile(string) (string, error) { return "hash", nil }

// recordingRemover records removed sub-chunk files.
type recordingRemover struct {
	mu      sync.Mutex
	removed []string
}

func (r *recordingRemover) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, name)
	return nil
}

func (r *recordingRemover) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	manager *job.Manager
	proc    *processor.Processor
	gov     *governor.Governor
	tool    *extractTool
	remover *recordingRemover
	jobID   string
	desc    chunk.Descriptor
}

func newFixture(t *testing.T, m mode.Mode, ts *scriptedTranscriber) *fixture {
	t.Helper()

	manager := job.NewManager()
	tool := &extractTool{}
	remover := &recordingRemover{}
	proc := processor.New(manager, tool, ts, t.TempDir(),
		processor.WithFileRemover(remover))

	gov := governor.New(m, manager.IsCancelled,
		governor.WithAfterFunc(func(_ time.Duration, f func()) { go f() }),
		governor.WithJitterSource(func() float64 { return 0 }))
	t.Cleanup(gov.Shutdown)

	duration := m.Config().ChunkDuration
	desc := chunk.Descriptor{
		Index:     0,
		StartTime: 0,
		EndTime:   duration,
		Path:      "/scratch/chunk_0.ogg",
	}

	j := manager.CreateJob(job.Config{Mode: m}, job.Metadata{Filename: "talk.mp3"})
	if err := manager.InitializeChunks(j.ID, []chunk.Descriptor{desc}); err != nil {
		t.Fatalf("InitializeChunks: %v", err)
	}

	return &fixture{
		manager: manager,
		proc:    proc,
		gov:     gov,
		tool:    tool,
		remover: remover,
		jobID:   j.ID,
		desc:    desc,
	}
}

func (f *fixture) chunkStatus(t *testing.T) job.ChunkStatus {
	t.Helper()
	j := f.manager.GetJob(f.jobID)
	if j == nil {
		t.Fatal("job vanished")
	}
	return j.ChunkStatuses[0]
}

// ---------------------------------------------------------------------------
// Process - success and retry loop
// ---------------------------------------------------------------------------

func TestProcess_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		return "transcribed text", nil
	}}
	f := newFixture(t, mode.Balanced, ts)

	text, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "transcribed text" {
		t.Errorf("text = %q", text)
	}

	cs := f.chunkStatus(t)
	if cs.State != job.ChunkCompleted || cs.Transcript != "transcribed text" {
		t.Errorf("chunk status = %+v, want completed with transcript", cs)
	}
	if j := f.manager.GetJob(f.jobID); j.TotalRetries != 0 {
		t.Errorf("total retries = %d, want 0", j.TotalRetries)
	}
}

func TestProcess_RetryThenSucceed(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(_ string, call int) (string, error) {
		if call < 3 {
			return "", errors.New("transient provider error")
		}
		return "third time lucky", nil
	}}
	f := newFixture(t, mode.Balanced, ts)

	text, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "third time lucky" {
		t.Errorf("text = %q", text)
	}

	cs := f.chunkStatus(t)
	if cs.State != job.ChunkCompleted {
		t.Errorf("chunk state = %v, want completed", cs.State)
	}
	if cs.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", cs.RetryCount)
	}
	if cs.WasSplit {
		t.Error("chunk was split despite eventual success")
	}

	j := f.manager.GetJob(f.jobID)
	if j.TotalRetries != 2 {
		t.Errorf("total retries = %d, want 2", j.TotalRetries)
	}
	if j.AutoSplits != 0 {
		t.Errorf("auto splits = %d, want 0", j.AutoSplits)
	}
}

func TestProcess_UnknownJob(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) { return "", nil }}
	f := newFixture(t, mode.Balanced, ts)

	_, err := f.proc.Process(context.Background(), "nope", f.desc, f.gov)
	if !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Process - auto-split
// ---------------------------------------------------------------------------

func TestProcess_RetryThenAutoSplit(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(path string, _ int) (string, error) {
		if strings.Contains(path, "subchunk_") {
			if strings.Contains(path, "_0_0_") {
				return "first half", nil
			}
			return "second half", nil
		}
		return "", errors.New("parent chunk keeps failing")
	}}
	f := newFixture(t, mode.BestQuality, ts)

	text, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "first half second half" {
		t.Errorf("text = %q, want joined sub-chunk transcripts", text)
	}

	cs := f.chunkStatus(t)
	if cs.State != job.ChunkCompleted || !cs.WasSplit {
		t.Errorf("chunk status = %+v, want completed and split", cs)
	}

	j := f.manager.GetJob(f.jobID)
	if j.AutoSplits != 1 {
		t.Errorf("auto splits = %d, want 1", j.AutoSplits)
	}
	// Two failed parent attempts plus one counted attempt per sub-chunk.
	if j.TotalRetries != 4 {
		t.Errorf("total retries = %d, want 4", j.TotalRetries)
	}

	// A 600s chunk splits into two 300s pieces cut from the parent file.
	f.tool.mu.Lock()
	extracts := append([]extractCall(nil), f.tool.extracts...)
	f.tool.mu.Unlock()
	if len(extracts) != 2 {
		t.Fatalf("extract calls = %d, want 2", len(extracts))
	}
	for i, e := range extracts {
		if e.input != f.desc.Path {
			t.Errorf("extract %d input = %q, want parent chunk path", i, e.input)
		}
		if e.start != time.Duration(i)*300*time.Second || e.dur != 300*time.Second {
			t.Errorf("extract %d = start %v dur %v, want %ds/300s", i, e.start, e.dur, i*300)
		}
	}

	if f.remover.count() != 2 {
		t.Errorf("removed %d sub-chunk files, want 2", f.remover.count())
	}
}

func TestProcess_SubChunkFailureIsTerminal(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(path string, _ int) (string, error) {
		if strings.Contains(path, "subchunk_") {
			return "", errors.New("sub-chunk also fails")
		}
		return "", errors.New("parent chunk keeps failing")
	}}
	f := newFixture(t, mode.BestQuality, ts)

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, processor.ErrSubChunkFailed) {
		t.Fatalf("error = %v, want ErrSubChunkFailed", err)
	}

	cs := f.chunkStatus(t)
	if cs.State != job.ChunkFailed {
		t.Errorf("chunk state = %v, want failed", cs.State)
	}
	// The failing sub-chunk file is still cleaned up.
	if f.remover.count() != 1 {
		t.Errorf("removed %d sub-chunk files, want 1", f.remover.count())
	}
}

// ---------------------------------------------------------------------------
// Process - safeguards
// ---------------------------------------------------------------------------

func TestProcess_MaxTotalRetriesSafeguard(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		return "", errors.New("always failing")
	}}
	f := newFixture(t, mode.BestQuality, ts)

	for i := 0; i < job.MaxTotalRetries; i++ {
		if _, err := f.manager.IncrementRetries(f.jobID); err != nil {
			t.Fatalf("IncrementRetries: %v", err)
		}
	}

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, job.ErrMaxRetriesExceeded) {
		t.Fatalf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	if !strings.Contains(err.Error(), "Maximum total retries") ||
		!strings.Contains(err.Error(), "exceeded") {
		t.Errorf("error message = %q", err.Error())
	}

	cs := f.chunkStatus(t)
	if cs.State != job.ChunkFailed || cs.Transcript != "" {
		t.Errorf("chunk status = %+v, want failed without transcript", cs)
	}
	// A spent budget buys no further provider attempts.
	if ts.callCount() != 0 {
		t.Errorf("transcriber calls = %d, want 0", ts.callCount())
	}
	if j := f.manager.GetJob(f.jobID); j.TotalRetries != job.MaxTotalRetries {
		t.Errorf("total retries = %d, want %d", j.TotalRetries, job.MaxTotalRetries)
	}
}

func TestProcess_RetryBudgetStopsMidLoop(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		return "", errors.New("always failing")
	}}
	f := newFixture(t, mode.Balanced, ts)

	// One retry short of the budget: the first failed attempt spends the
	// last one, so the remaining per-chunk attempts never run.
	for i := 0; i < job.MaxTotalRetries-1; i++ {
		if _, err := f.manager.IncrementRetries(f.jobID); err != nil {
			t.Fatalf("IncrementRetries: %v", err)
		}
	}

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, job.ErrMaxRetriesExceeded) {
		t.Fatalf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	if ts.callCount() != 1 {
		t.Errorf("transcriber calls = %d, want 1", ts.callCount())
	}
	if j := f.manager.GetJob(f.jobID); j.TotalRetries != job.MaxTotalRetries {
		t.Errorf("total retries = %d, want exactly %d", j.TotalRetries, job.MaxTotalRetries)
	}
	if cs := f.chunkStatus(t); cs.State != job.ChunkFailed {
		t.Errorf("chunk state = %v, want failed", cs.State)
	}
}

func TestProcess_MaxAutoSplitsSafeguard(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		return "", errors.New("always failing")
	}}
	f := newFixture(t, mode.BestQuality, ts)

	for i := 0; i < job.MaxAutoSplits; i++ {
		if _, err := f.manager.IncrementAutoSplits(f.jobID); err != nil {
			t.Fatalf("IncrementAutoSplits: %v", err)
		}
	}

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, job.ErrMaxSplitsExceeded) {
		t.Fatalf("error = %v, want ErrMaxSplitsExceeded", err)
	}
	if !strings.Contains(err.Error(), "Maximum auto-splits") {
		t.Errorf("error message = %q", err.Error())
	}
}

// ---------------------------------------------------------------------------
// Process - cancellation
// ---------------------------------------------------------------------------

func TestProcess_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		return "should not run", nil
	}}
	f := newFixture(t, mode.Balanced, ts)

	if err := f.manager.Cancel(f.jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, job.ErrJobCancelled) {
		t.Fatalf("error = %v, want ErrJobCancelled", err)
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("error message = %q, want mention of cancellation", err.Error())
	}
	if ts.callCount() != 0 {
		t.Error("transcriber ran for a cancelled job")
	}
}

func TestProcess_CancelledMidFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once sync.Once
	ts := &scriptedTranscriber{fn: func(string, int) (string, error) {
		once.Do(func() { close(started) })
		time.Sleep(100 * time.Millisecond)
		return "finished anyway", nil
	}}
	f := newFixture(t, mode.Balanced, ts)

	go func() {
		<-started
		_ = f.manager.Cancel(f.jobID)
	}()

	_, err := f.proc.Process(context.Background(), f.jobID, f.desc, f.gov)
	if !errors.Is(err, job.ErrJobCancelled) {
		t.Fatalf("error = %v, want ErrJobCancelled", err)
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("error message = %q, want mention of cancellation", err.Error())
	}

	// The transcript is never exposed for a cancelled job.
	if resp := f.manager.GetStatusResponse(f.jobID); resp.Transcript != "" {
		t.Errorf("transcript = %q on a cancelled job", resp.Transcript)
	}
}
