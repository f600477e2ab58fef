// Package format renders durations and byte sizes for log output. Chunk
// boundaries use zero-padded clock positions so ranges line up in logs;
// elapsed processing times use compact h/m/s units.
package format

import (
	"fmt"
	"time"
)

// Clock renders d as a zero-padded position in the source audio: MM:SS
// under an hour, HH:MM:SS from there on.
func Clock(d time.Duration) string {
	total := int(d / time.Second)
	h := total / 3600
	m := total / 60 % 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Range renders a chunk's [start, end) span as two clock positions.
func Range(start, end time.Duration) string {
	return Clock(start) + "-" + Clock(end)
}

// Elapsed renders a wall-clock span for completion logs. Sub-second spans
// keep millisecond precision; longer spans round to whole seconds.
func Elapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Size renders a byte count using the largest binary unit that keeps the
// value at or above one.
func Size(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
