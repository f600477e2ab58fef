// Command transcribed runs the transcription job engine behind a small HTTP
// host: upload audio, poll status, cancel. The engine itself is transport
// agnostic; everything HTTP-specific lives here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-transcribe-engine/internal/chunk"
	"github.com/alnah/go-transcribe-engine/internal/engine"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/media"
	"github.com/alnah/go-transcribe-engine/internal/processor"
	"github.com/alnah/go-transcribe-engine/internal/provider"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		addr       string
		scratchDir string
		ffmpegPath string
	)

	rootCmd := &cobra.Command{
		Use:     "transcribed",
		Short:   "Long-form audio transcription job engine",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), addr, scratchDir, ffmpegPath)
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	rootCmd.Flags().StringVar(&scratchDir, "scratch-dir", os.TempDir(), "directory for scratch audio files")
	rootCmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "", "path to ffmpeg (default: resolve from PATH)")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the engine and serves HTTP until the context is cancelled.
func run(ctx context.Context, addr, scratchDir, ffmpegPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tool, err := media.NewFFmpegTool(ffmpegPath)
	if err != nil {
		return err
	}

	manager := job.NewManager(job.WithLogger(logger))
	chunker := chunk.New(tool, scratchDir)
	transcriber := provider.NewOpenAITranscriber()
	proc := processor.New(manager, tool, transcriber, scratchDir,
		processor.WithLogger(logger))
	eng := engine.New(manager, chunker, proc, engine.WithLogger(logger))

	srv := newServer(eng, os.Getenv("OPENAI_API_KEY"), logger)
	err = srv.serve(ctx, addr)

	// Let in-flight jobs reach a terminal state before exiting.
	eng.Wait()
	return err
}
