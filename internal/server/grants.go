package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/grantforge/grantforge/internal/agent/core"
	"github.com/grantforge/grantforge/internal/export"
)

// GrantGenerator is what the handler needs from the orchestrator
type GrantGenerator interface {
	GenerateGrant(ctx context.Context, req core.GenerationRequest) core.GrantDocument
}

// GrantsHandler serves the grant generation API
type GrantsHandler struct {
	Orch           GrantGenerator
	Jobs           *JobStore
	Timeout        time.Duration
	AttachmentName string
	logger         *log.Logger
}

// Register mounts the handler's routes on the API group
func (h *GrantsHandler) Register(g *echo.Group) {
	h.logger = log.New(log.Writer(), "[GRANTS] ", log.LstdFlags)
	if h.AttachmentName == "" {
		h.AttachmentName = "grant_application.docx"
	}
	g.POST("/generate-grant", h.generate)
	g.GET("/get-grant-status", h.status)
	g.POST("/save-grant", h.save)
}

// generate accepts a submission and starts orchestration in the
// background. The caller gets processing immediately and polls for the
// outcome; a resubmission before completion supersedes the previous run.
func (h *GrantsHandler) generate(c echo.Context) error {
	var req core.GenerationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.Jobs.Begin(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	jobID := uuid.NewString()
	h.logger.Printf("job %s: generation started for %q", jobID, req.NonprofitName)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Printf("job %s: panic during generation: %v", jobID, r)
				h.Jobs.Fail(fmt.Sprintf("generation aborted: %v", r))
			}
		}()

		ctx := context.Background()
		if h.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.Timeout)
			defer cancel()
		}

		doc := h.Orch.GenerateGrant(ctx, req)
		h.Jobs.Complete(doc)
		h.logger.Printf("job %s: generation finished", jobID)
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":  StatusProcessing,
		"message": "Grant generation started. Redirecting to review page.",
	})
}

// status reports the current slot state
func (h *GrantsHandler) status(c echo.Context) error {
	job, err := h.Jobs.Snapshot()
	if err != nil {
		h.logger.Printf("status poll: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not read result file.")
	}

	switch job.Status {
	case StatusCompleted:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": job.Status,
			"data":   job.Result,
		})
	default:
		return c.JSON(http.StatusOK, map[string]string{
			"status":  job.Status,
			"message": job.Message,
		})
	}
}

// save converts the (possibly edited) document into a DOCX download
func (h *GrantsHandler) save(c echo.Context) error {
	var body struct {
		Content core.GrantDocument `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	data, err := export.GrantDocx(body.Content)
	if err != nil {
		h.logger.Printf("docx export: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not generate document")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", h.AttachmentName))
	return c.Blob(http.StatusOK, export.ContentType, data)
}
