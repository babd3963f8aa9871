package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/service"
	"github.com/sai034/css-video-editor/internal/tracing"
	"github.com/sai034/css-video-editor/pkg/models"
	"github.com/sai034/css-video-editor/pkg/srt"
)

// RenderService is the part of the render service the API uses
type RenderService interface {
	Submit(ctx context.Context, req models.RenderRequest, callbackURL string) (*models.RenderJob, error)
	Get(ctx context.Context, id string) (*service.JobStatus, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.RenderJob, error)
	Cancel(ctx context.Context, id string) (*models.RenderJob, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type API struct {
	renders RenderService
	checks  map[string]HealthCheck
	logger  *logging.Logger
}

// createRenderRequest is a render request plus delivery options
type createRenderRequest struct {
	models.RenderRequest
	CallbackURL string `json:"callback_url"`
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range api.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"component": name,
				"error":     err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// createRender queues a render
// POST /api/v1/renders
func (api *API) createRender(c *gin.Context) {
	var req createRenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	span, ctx := tracing.StartSpan(c.Request.Context(), "api.create_render")
	defer tracing.FinishSpan(span)

	job, err := api.renders.Submit(ctx, req.RenderRequest, req.CallbackURL)
	if err != nil {
		tracing.LogError(span, err)
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		api.logger.ErrorWithErr("Failed to submit render", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit render"})
		return
	}

	tracing.SetTag(span, "render.job_id", job.ID)
	c.JSON(http.StatusAccepted, job)
}

// getRender returns a render job and its artifact
// GET /api/v1/renders/:id
func (api *API) getRender(c *gin.Context) {
	status, err := api.renders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "render not found"})
			return
		}
		api.logger.ErrorWithErr("Failed to get render", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get render"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// listRenders lists render jobs
// GET /api/v1/renders?status=&limit=&offset=
func (api *API) listRenders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := api.renders.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		api.logger.ErrorWithErr("Failed to list renders", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list renders"})
		return
	}
	if jobs == nil {
		jobs = []*models.RenderJob{}
	}

	c.JSON(http.StatusOK, gin.H{
		"renders": jobs,
		"limit":   limit,
		"offset":  offset,
	})
}

// cancelRender cancels a pending or running render
// POST /api/v1/renders/:id/cancel
func (api *API) cancelRender(c *gin.Context) {
	job, err := api.renders.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "render not found"})
	case errors.Is(err, service.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "render already finished", "status": job.Status})
	case err != nil:
		api.logger.ErrorWithErr("Failed to cancel render", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel render"})
	default:
		c.JSON(http.StatusAccepted, job)
	}
}

// listFormats lists the output formats and whether they can be rendered
// GET /api/v1/formats
func (api *API) listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": models.Formats})
}

// exportSubtitles converts subtitles to SubRip
// POST /api/v1/subtitles/export
func (api *API) exportSubtitles(c *gin.Context) {
	var req struct {
		Subtitles []models.Subtitle `json:"subtitles" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="subtitles.srt"`)
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", srt.Marshal(req.Subtitles))
}

// importSubtitles parses SubRip sent either as a "file" form field or as
// the raw request body
// POST /api/v1/subtitles/import
func (api *API) importSubtitles(c *gin.Context) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No subtitle file provided"})
			return
		}
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read subtitle file"})
			return
		}
		defer file.Close()
		r = file
	}

	subs, err := srt.Parse(r)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subtitle file", "details": err.Error()})
		return
	}
	if subs == nil {
		subs = []models.Subtitle{}
	}

	c.JSON(http.StatusOK, gin.H{"subtitles": subs})
}
