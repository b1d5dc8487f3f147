package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/jv-board/internal/auth"
	"github.com/david/jv-board/internal/board"
	"github.com/david/jv-board/internal/sheet"
)

const maxUploadBytes = 20 << 20

// handleRefresh starts a feed refresh in the background and returns 202 with a job id.
// Only one refresh runs at a time.
func (s *Server) handleRefresh(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A refresh is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), refreshJobTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		report, err := s.Board.Refresh(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Result = report
		switch {
		case err == nil:
			job.Status = "completed"
		case errors.Is(err, board.ErrNoData):
			job.Status = "completed"
			job.Error = err.Error()
		default:
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[refresh-job %s] failed: %v", jobID, err)
			return
		}
		log.Printf("[refresh-job %s] %s: projects=%d", jobID, job.Status, report.Run.Projects)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Refresh started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

// handleImport replaces the collection with the projects of an uploaded workbook
// (multipart field "file").
func (s *Server) handleImport(c echo.Context) error {
	kind, err := sheet.ParseKind(c.QueryParam("kind"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file upload required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer f.Close()

	res, err := sheet.Parse(f, kind)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	run, err := s.Board.ReplaceFromImport(c.Request().Context(), res.Projects)
	if errors.Is(err, board.ErrNoData) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "No projects found in workbook",
			"dropped": res.Dropped,
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	log.Printf("[Import] %s %q: %d projects, %d rows dropped", res.Kind, fh.Filename, len(res.Projects), res.Dropped)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"kind":     res.Kind,
		"sheet":    res.Sheet,
		"projects": len(res.Projects),
		"dropped":  res.Dropped,
		"run":      run,
	})
}

func (s *Server) handleRawDump(c echo.Context) error {
	if s.Feeds == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "feeds not configured"})
	}
	return c.JSON(http.StatusOK, s.Feeds.DumpRaw(c.Request().Context()))
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

type sharesRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleSetShares(c echo.Context) error {
	notice := strings.TrimSpace(c.Param("notice"))
	var req sharesRequest
	if err := c.Bind(&req); err != nil || notice == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := s.Board.SetShares(c.Request().Context(), notice, req.Names); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notice_no": notice, "names": req.Names})
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var req auth.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	user, err := s.Accounts.CreateUser(c.Request().Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidUser):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, user)
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
}
