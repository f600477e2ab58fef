package governor

// Test hooks for driving the outcome window without scheduling real work.

// RecordSuccess appends a success outcome to the rolling window.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordOutcomeLocked(outcomeSuccess)
}

// RecordRateLimit appends a rate-limited outcome to the rolling window.
func (g *Governor) RecordRateLimit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordOutcomeLocked(outcomeRateLimited)
}

// RecordFailure appends a failed outcome to the rolling window.
func (g *Governor) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recordOutcomeLocked(outcomeFailed)
}

// WindowLen returns the current rolling-window length.
func (g *Governor) WindowLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.window)
}

// RateLimitedFraction returns the rate-limited share of the window.
func (g *Governor) RateLimitedFraction() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rateLimitedFractionLocked()
}
