// Package governor provides a per-job bounded concurrent executor with a
// priority queue, 429-aware backoff, and adaptive degraded-mode concurrency
// reduction. All governor state is mutated under a single mutex; work bodies
// run concurrently up to the mode's concurrency limit.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alnah/go-transcribe-engine/internal/apierr"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// Priority constants. Retried requests are re-enqueued with a bumped
// priority so a freshly backed-off request outruns fresh arrivals at the
// same logical level; sub-chunk work runs ahead of all regular chunks.
const (
	// RetryPriorityBump is added to a request's priority on every
	// rate-limit re-enqueue.
	RetryPriorityBump = 10

	// SubChunkPriorityBase is added to the parent chunk index for
	// auto-split sub-chunk requests.
	SubChunkPriorityBase = 1000
)

// Degraded-mode thresholds.
const (
	// outcomeWindowSize is the number of recent outcomes considered.
	outcomeWindowSize = 20

	// degradedEnterFraction is the rate-limited fraction that triggers
	// degraded mode once the window is full.
	degradedEnterFraction = 0.30

	// degradedExitFraction is the rate-limited fraction below which
	// degraded mode may end.
	degradedExitFraction = 0.10

	// minDegradedDuration is the minimum time spent degraded before
	// normal concurrency is restored.
	minDegradedDuration = 30 * time.Second
)

// ErrShutdown indicates the governor was shut down with work still queued.
var ErrShutdown = errors.New("governor shut down")

// ErrRetriesExhausted indicates a request hit its rate-limit retry budget.
var ErrRetriesExhausted = errors.New("rate limit retry limit exceeded")

// Exec is the unit of work a request runs, typically one provider call.
type Exec func() (string, error)

// CancelledFunc reports whether the owning job has been cancelled.
// Checked before every request start so a cancelled job drains its queue
// without invoking any more work.
type CancelledFunc func(jobID string) bool

// outcome classifies one completed request.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRateLimited
	outcomeFailed
)

// result carries a finished request back to its awaiting caller.
type result struct {
	text string
	err  error
}

// request is one enqueued unit of work.
type request struct {
	id         string
	jobID      string
	chunkIndex int
	priority   int
	seq        uint64
	attempt    int // completed run count, drives the backoff curve
	exec       Exec
	done       chan result
}

func (r *request) resolve(text string, err error) {
	r.done <- result{text: text, err: err}
}

// Stats is a point-in-time snapshot of governor counters.
type Stats struct {
	TotalRequests       int
	Successful          int
	RateLimited         int
	Failed              int
	DegradedMode        bool
	DegradedActivations int
	TimeDegraded        time.Duration
	PeakConcurrency     int
	CurrentConcurrency  int
	MaxConcurrency      int
	QueueLength         int
	AvgDuration         time.Duration
}

// Governor schedules provider requests for a single job.
type Governor struct {
	cfg       mode.Config
	cancelled CancelledFunc
	logger    *slog.Logger

	mu                sync.Mutex
	queue             requestQueue
	inFlight          map[string]*request
	normalConcurrency int
	maxConcurrency    int
	current           int
	seq               uint64
	closed            bool

	degraded      bool
	degradedSince time.Time
	window        []outcome

	stats         Stats
	totalDuration time.Duration
	completedRuns int

	// Injectable for deterministic tests.
	now    func() time.Time
	jitter func() float64 // uniform in [-1, 1]
	after  func(d time.Duration, f func()) // defaults to time.AfterFunc
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// WithJitterSource sets the jitter source; fn must return values in [-1, 1].
func WithJitterSource(fn func() float64) Option {
	return func(g *Governor) {
		g.jitter = fn
	}
}

// WithAfterFunc sets the delayed-callback scheduler (for testing).
func WithAfterFunc(after func(d time.Duration, f func())) Option {
	return func(g *Governor) {
		g.after = after
	}
}

// New creates a Governor for one job using the mode's concurrency, retry,
// and backoff configuration. cancelled must not be nil.
func New(m mode.Mode, cancelled CancelledFunc, opts ...Option) *Governor {
	cfg := m.Config()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- jitter, not crypto
	g := &Governor{
		cfg:               cfg,
		cancelled:         cancelled,
		logger:            slog.Default(),
		inFlight:          make(map[string]*request),
		normalConcurrency: cfg.MaxConcurrency,
		maxConcurrency:    cfg.MaxConcurrency,
		now:               time.Now,
		jitter:            func() float64 { return rnd.Float64()*2 - 1 },
	}
	g.after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	g.stats.MaxConcurrency = cfg.MaxConcurrency
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enqueue submits work and blocks until it resolves or ctx is done.
// Rate-limited runs are retried internally with backoff up to the mode's
// retry budget; other errors propagate immediately.
func (g *Governor) Enqueue(ctx context.Context, id, jobID string, chunkIndex int, exec Exec, priority int) (string, error) {
	req := &request{
		id:         id,
		jobID:      jobID,
		chunkIndex: chunkIndex,
		priority:   priority,
		exec:       exec,
		done:       make(chan result, 1),
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", ErrShutdown
	}
	g.seq++
	req.seq = g.seq
	g.stats.TotalRequests++
	g.queue.push(req)
	g.dispatchLocked()
	g.mu.Unlock()

	select {
	case r := <-req.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// dispatchLocked starts queued work while slots are free.
// Must be called with g.mu held.
func (g *Governor) dispatchLocked() {
	for !g.closed && g.current < g.maxConcurrency {
		req := g.queue.pop()
		if req == nil {
			return
		}

		// A cancelled job drains without invoking exec.
		if g.cancelled(req.jobID) {
			req.resolve("", fmt.Errorf("request %s: %w", req.id, job.ErrJobCancelled))
			continue
		}

		g.current++
		if g.current > g.stats.PeakConcurrency {
			g.stats.PeakConcurrency = g.current
		}
		g.inFlight[req.id] = req
		go g.run(req)
	}
}

// run executes one request outside the lock and settles its outcome.
func (g *Governor) run(req *request) {
	start := g.now()
	text, err := req.exec()
	elapsed := g.now().Sub(start)

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, req.id)
	g.current--
	req.attempt++
	g.completedRuns++
	g.totalDuration += elapsed

	switch {
	case err == nil:
		g.recordOutcomeLocked(outcomeSuccess)
		req.resolve(text, nil)

	case apierr.IsRateLimit(err):
		g.recordOutcomeLocked(outcomeRateLimited)
		if req.attempt < g.cfg.MaxRetries {
			g.scheduleRetryLocked(req, err)
		} else {
			req.resolve("", fmt.Errorf("%w after %d attempts: %v",
				ErrRetriesExhausted, req.attempt, err))
		}

	default:
		g.recordOutcomeLocked(outcomeFailed)
		req.resolve("", err)
	}

	g.dispatchLocked()
}

// scheduleRetryLocked re-enqueues req after the mode's backoff delay.
// The priority bump lets the retried request outrun fresh arrivals.
// Must be called with g.mu held.
func (g *Governor) scheduleRetryLocked(req *request, cause error) {
	delay := g.cfg.Backoff.Delay(req.attempt, g.jitter())

	// The provider's Retry-After hint can only lengthen the wait, and never
	// beyond the mode's backoff ceiling.
	if hint := apierr.RetryAfter(cause); hint > 0 {
		d := time.Duration(hint * float64(time.Second))
		if d > g.cfg.Backoff.Max {
			d = g.cfg.Backoff.Max
		}
		if d > delay {
			delay = d
		}
	}

	req.priority += RetryPriorityBump

	g.logger.Debug("rate limited, scheduling retry",
		"request", req.id,
		"job", req.jobID,
		"chunk", req.chunkIndex,
		"attempt", req.attempt,
		"delay", delay,
		"cause", cause.Error())

	g.after(delay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed {
			req.resolve("", ErrShutdown)
			return
		}
		g.seq++
		req.seq = g.seq
		g.queue.push(req)
		g.dispatchLocked()
	})
}

// recordOutcomeLocked appends to the rolling window, updates counters, and
// evaluates degraded-mode transitions. Must be called with g.mu held.
func (g *Governor) recordOutcomeLocked(o outcome) {
	switch o {
	case outcomeSuccess:
		g.stats.Successful++
	case outcomeRateLimited:
		g.stats.RateLimited++
	case outcomeFailed:
		g.stats.Failed++
	}

	g.window = append(g.window, o)
	if len(g.window) > outcomeWindowSize {
		g.window = g.window[1:]
	}

	frac := g.rateLimitedFractionLocked()
	switch {
	case !g.degraded && len(g.window) == outcomeWindowSize && frac >= degradedEnterFraction:
		g.degraded = true
		g.degradedSince = g.now()
		g.stats.DegradedActivations++
		g.maxConcurrency = max(1, g.normalConcurrency/2)
		g.logger.Warn("entering degraded mode",
			"rate_limited_fraction", frac,
			"max_concurrency", g.maxConcurrency)

	case g.degraded && frac < degradedExitFraction:
		elapsed := g.now().Sub(g.degradedSince)
		if elapsed >= minDegradedDuration {
			g.degraded = false
			g.stats.TimeDegraded += elapsed
			g.maxConcurrency = g.normalConcurrency
			g.logger.Info("exiting degraded mode",
				"degraded_for", elapsed,
				"max_concurrency", g.maxConcurrency)
		}
	}
}

// rateLimitedFractionLocked returns the rate-limited share of the window.
func (g *Governor) rateLimitedFractionLocked() float64 {
	if len(g.window) == 0 {
		return 0
	}
	limited := 0
	for _, o := range g.window {
		if o == outcomeRateLimited {
			limited++
		}
	}
	return float64(limited) / float64(len(g.window))
}

// Stats returns a snapshot of the governor's counters.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.stats
	s.DegradedMode = g.degraded
	s.CurrentConcurrency = g.current
	s.MaxConcurrency = g.maxConcurrency
	s.QueueLength = g.queue.Len()
	if g.degraded {
		s.TimeDegraded += g.now().Sub(g.degradedSince)
	}
	if g.completedRuns > 0 {
		s.AvgDuration = g.totalDuration / time.Duration(g.completedRuns)
	}
	return s
}

// Shutdown rejects all queued requests with ErrShutdown and prevents new
// work. In-flight requests finish; pending backoff retries resolve with
// ErrShutdown when their timer fires.
func (g *Governor) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	for {
		req := g.queue.pop()
		if req == nil {
			break
		}
		req.resolve("", ErrShutdown)
	}
}
