package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Compile-time interface implementation check.
var _ Tool = (*FFmpegTool)(nil)

// FFmpegTool implements Tool by shelling out to an ffmpeg binary.
// ffprobe is deliberately not required: duration is parsed from ffmpeg's
// own stderr, which is available wherever ffmpeg is.
type FFmpegTool struct {
	ffmpegPath string

	// Injectable dependencies (defaults to OS implementations).
	cmd   commandRunner
	files fileOpener
}

// FFmpegToolOption configures an FFmpegTool.
type FFmpegToolOption func(*FFmpegTool)

// WithCommandRunner sets the command runner (for testing).
func WithCommandRunner(r commandRunner) FFmpegToolOption {
	return func(t *FFmpegTool) {
		t.cmd = r
	}
}

// WithFileOpener sets the file opener (for testing).
func WithFileOpener(f fileOpener) FFmpegToolOption {
	return func(t *FFmpegTool) {
		t.files = f
	}
}

// NewFFmpegTool creates an FFmpegTool using the given ffmpeg binary path.
// An empty path is resolved against PATH; resolution failure is ErrNotFound.
func NewFFmpegTool(ffmpegPath string, opts ...FFmpegToolOption) (*FFmpegTool, error) {
	if ffmpegPath == "" {
		resolved, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not in PATH: %w", ErrNotFound)
		}
		ffmpegPath = resolved
	}

	t := &FFmpegTool{
		ffmpegPath: ffmpegPath,
		cmd:        osCommandRunner{},
		files:      osFileOpener{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ProbeDuration reports the duration of the audio file at path.
func (t *FFmpegTool) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	// The -i flag with a null muxer prints file info, including duration,
	// to stderr without producing output.
	args := []string{
		"-i", path,
		"-f", "null", "-",
	}
	output, err := t.cmd.CombinedOutput(ctx, t.ffmpegPath, args)
	if err != nil {
		// FFmpeg returns non-zero even when it successfully reads file info,
		// so we try to parse the output anyway.
		if len(output) == 0 {
			return 0, fmt.Errorf("%w: %v", ErrProbeFailed, err)
		}
	}

	d, err := parseDurationFromFFmpegOutput(string(output))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return d, nil
}

// Extract writes the range [start, start+duration) of inputPath to outputPath.
// Re-encodes to OGG Vorbis (16kHz mono, ~50kbps) to ensure valid output even
// from corrupted or truncated sources; the -y flag makes it idempotent.
func (t *FFmpegTool) Extract(ctx context.Context, inputPath string, start, duration time.Duration, outputPath string) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-ss", formatFFmpegTime(start),
		"-to", formatFFmpegTime(start + duration),
	}
	args = append(args, encodingArgs()...)
	args = append(args, outputPath)

	output, err := t.cmd.CombinedOutput(ctx, t.ffmpegPath, args)
	if err != nil {
		return fmt.Errorf("%w: extracting %s: %v\nOutput: %s",
			ErrExtractFailed, outputPath, err, string(output))
	}
	return nil
}

// HashFile returns the lowercase SHA-256 hex digest of the file bytes.
func (t *FFmpegTool) HashFile(path string) (string, error) {
	f, err := t.files.Open(path) // #nosec G304 -- path is produced by internal chunking
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// encodingArgs returns FFmpeg encoding arguments for chunk extraction.
// Same parameters as speech recording (16kHz mono, ~50kbps) which are
// optimal for transcription.
func encodingArgs() []string {
	return []string{
		"-c:a", "libvorbis",
		"-ar", "16000",
		"-ac", "1",
		"-q:a", "2",
	}
}

// formatFFmpegTime formats a duration for FFmpeg -ss/-to arguments.
func formatFFmpegTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// parseDurationFromFFmpegOutput extracts duration from FFmpeg stderr.
// Looks for: "Duration: HH:MM:SS.ms" or "time=HH:MM:SS.ms"
func parseDurationFromFFmpegOutput(output string) (time.Duration, error) {
	// Pattern: Duration: 00:05:23.45
	durationRe := regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	if matches := durationRe.FindStringSubmatch(output); matches != nil {
		return parseTimeComponents(matches[1], matches[2], matches[3], matches[4])
	}

	// Fallback pattern: time=00:05:23.45 (from progress output).
	// Use the last match (final time).
	timeRe := regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	allMatches := timeRe.FindAllStringSubmatch(output, -1)
	if len(allMatches) > 0 {
		matches := allMatches[len(allMatches)-1]
		return parseTimeComponents(matches[1], matches[2], matches[3], matches[4])
	}

	return 0, fmt.Errorf("could not parse duration from ffmpeg output")
}

// parseTimeComponents converts HH:MM:SS.ms strings to Duration.
func parseTimeComponents(hours, minutes, seconds, fractional string) (time.Duration, error) {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)

	// Normalize fractional part to milliseconds.
	// Input may be 1-6+ digits (e.g., ".4", ".45", ".456", ".456789").
	frac, _ := strconv.Atoi(fractional)
	ms := frac
	switch n := len(fractional); {
	case n == 1:
		ms = frac * 100
	case n == 2:
		ms = frac * 10
	case n == 3:
		// Already milliseconds.
	case n > 3:
		for i := n; i > 3; i-- {
			ms /= 10
		}
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
