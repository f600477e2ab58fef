package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/alnah/go-transcribe-engine/internal/engine"
	"github.com/alnah/go-transcribe-engine/internal/format"
	"github.com/alnah/go-transcribe-engine/internal/job"
	"github.com/alnah/go-transcribe-engine/internal/mode"
)

// maxUploadBytes bounds request bodies; two hours of compressed speech
// stays well under this.
const maxUploadBytes = 512 << 20

// shutdownTimeout bounds how long draining connections may take.
const shutdownTimeout = 10 * time.Second

// server is the HTTP host around the engine.
type server struct {
	engine *engine.Engine
	apiKey string // provider credential handed to submitted jobs
	logger *slog.Logger
}

func newServer(eng *engine.Engine, apiKey string, logger *slog.Logger) *server {
	return &server{engine: eng, apiKey: apiKey, logger: logger}
}

// serve runs the HTTP listener until ctx is cancelled, then drains.
func (s *server) serve(ctx context.Context, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.Itoa(maxUploadBytes)))

	e.POST("/v1/jobs", s.handleSubmit)
	e.GET("/v1/jobs/:id", s.handleStatus)
	e.DELETE("/v1/jobs/:id", s.handleCancel)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// handleSubmit accepts a multipart upload and creates a transcription job.
func (s *server) handleSubmit(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing audio file")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable audio file")
	}
	defer func() { _ = f.Close() }()
	audio, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable audio file")
	}

	m, err := mode.Parse(c.FormValue("mode"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := job.Config{
		Mode:     m,
		Model:    c.FormValue("model"),
		APIKey:   s.apiKey,
		Language: c.FormValue("language"),
		Prompt:   c.FormValue("prompt"),
		UserID:   c.FormValue("user_id"),
	}
	if v := c.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid temperature")
		}
		cfg.Temperature = &t
	}

	jobID, err := s.engine.Submit(c.Request().Context(), cfg, fileHeader.Filename, audio)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyAudio) || errors.Is(err, engine.ErrInvalidConfig) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.logger.Info("job submitted",
		"job", jobID,
		"filename", fileHeader.Filename,
		"size", format.Size(int64(len(audio))),
		"mode", m.String())
	return c.JSON(http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleStatus returns the polling status response.
func (s *server) handleStatus(c echo.Context) error {
	jobID := c.Param("id")
	if userID := c.Request().Header.Get("X-User-ID"); userID != "" {
		if !s.engine.ValidateOwnership(jobID, userID) {
			return echo.NewHTTPError(http.StatusForbidden, "job belongs to another user")
		}
	}

	resp := s.engine.GetStatus(jobID)
	if resp == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, resp)
}

// handleCancel cancels a job.
func (s *server) handleCancel(c echo.Context) error {
	jobID := c.Param("id")
	if err := s.engine.Cancel(jobID); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
