// Package service runs render jobs: the API side records and queues them,
// the worker side renders them and publishes the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/database"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/internal/render"
	"github.com/sai034/css-video-editor/internal/tracing"
	"github.com/sai034/css-video-editor/pkg/models"
)

// JobStore persists render jobs and their artifacts
type JobStore interface {
	GetRenderJob(ctx context.Context, id string) (*models.RenderJob, error)
	UpdateRenderJob(ctx context.Context, job *models.RenderJob) error
	UpdateRenderProgress(ctx context.Context, id string, progress float64) error
	CreateArtifact(ctx context.Context, artifact *models.Artifact) error
}

// JobCache holds short-lived job state shared between the API and workers
type JobCache interface {
	SetRenderJob(ctx context.Context, job *models.RenderJob, ttl time.Duration) error
	SetProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
	ClearCancel(ctx context.Context, jobID string) error
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// ArtifactStore keeps finished renders
type ArtifactStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
	GetURL(ctx context.Context, key string) (string, error)
}

// SourceResolver turns a source reference into something ffmpeg can open
type SourceResolver interface {
	Localize(ctx context.Context, ref, dir string) (path string, cleanup func(), err error)
}

// Notifier tells the job's callback URL how it ended
type Notifier interface {
	NotifyRenderCompleted(ctx context.Context, job *models.RenderJob, artifact *models.Artifact) error
	NotifyRenderFailed(ctx context.Context, job *models.RenderJob) error
	NotifyRenderCancelled(ctx context.Context, job *models.RenderJob) error
}

// Renderer renders one request, reporting to obs
type Renderer interface {
	Render(ctx context.Context, req models.RenderRequest, obs render.Observer) (*render.Result, error)
}

// EditorRenderer renders every request on a fresh Editor so that workers
// can run concurrently
type EditorRenderer struct {
	Config render.Config
	Deps   render.Deps
}

// Render implements Renderer. A logger carried by ctx replaces Deps.Logger
// so the session's lines keep the caller's fields.
func (r EditorRenderer) Render(ctx context.Context, req models.RenderRequest, obs render.Observer) (*render.Result, error) {
	deps := r.Deps
	deps.Observer = obs
	deps.Logger = contextLogger(ctx, deps.Logger)
	return render.NewEditor(r.Config, deps).Render(ctx, req)
}

// contextLogger returns the logger attached to ctx, or fallback when there
// is none
func contextLogger(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// WorkerOptions tune a Worker
type WorkerOptions struct {
	WorkerID string
	TempDir  string
	// Timeout bounds a whole job, rendering included
	Timeout time.Duration
	// JobTTL is how long cached job state lives
	JobTTL time.Duration
	// CancelPollInterval is how often the cancel flag is checked
	CancelPollInterval time.Duration
	// ProgressStep is the minimum percent change that is published
	ProgressStep float64
}

var errJobCancelled = errors.New("job cancelled")

// Worker processes render jobs taken from the queue
type Worker struct {
	repo     JobStore
	cache    JobCache
	store    ArtifactStore
	sources  SourceResolver
	notifier Notifier
	renderer Renderer
	opts     WorkerOptions
	logger   *logging.Logger
}

// NewWorker creates a worker
func NewWorker(repo JobStore, cache JobCache, store ArtifactStore, sources SourceResolver, notifier Notifier, renderer Renderer, opts WorkerOptions, logger *logging.Logger) *Worker {
	if opts.WorkerID == "" {
		opts.WorkerID = uuid.New().String()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = 24 * time.Hour
	}
	if opts.CancelPollInterval <= 0 {
		opts.CancelPollInterval = time.Second
	}
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = 1
	}
	return &Worker{
		repo:     repo,
		cache:    cache,
		store:    store,
		sources:  sources,
		notifier: notifier,
		renderer: renderer,
		opts:     opts,
		logger:   logger.WithWorkerID(opts.WorkerID),
	}
}

// ID returns the worker ID recorded on the jobs it processes
func (w *Worker) ID() string {
	return w.opts.WorkerID
}

// ProcessJob renders a queued job. Failures of the render itself are
// recorded on the job and return nil; an error means the job could not be
// handled at all and should be retried.
func (w *Worker) ProcessJob(ctx context.Context, queued *models.RenderJob) error {
	lock := "render:" + queued.ID
	acquired, err := w.cache.AcquireLock(ctx, lock, w.opts.Timeout+time.Minute)
	if err != nil {
		return fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !acquired {
		w.logger.WithJobID(queued.ID).Info("Job is already being rendered, skipping")
		return nil
	}
	defer func() {
		if err := w.cache.ReleaseLock(context.Background(), lock); err != nil {
			w.logger.WithJobID(queued.ID).ErrorWithErr("Failed to release job lock", err)
		}
	}()

	job, err := w.repo.GetRenderJob(ctx, queued.ID)
	if errors.Is(err, database.ErrNotFound) {
		w.logger.WithJobID(queued.ID).Warn("Queued job no longer exists, dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.IsTerminal() {
		w.logger.WithJobID(job.ID).Infof("Job already %s, skipping", job.Status)
		return nil
	}

	if requested, _ := w.cache.IsCancelRequested(ctx, job.ID); requested {
		return w.cancelJob(ctx, job)
	}

	if job.Status == models.RenderStatusPending {
		metrics.RecordQueueTime(time.Since(job.CreatedAt).Seconds())
	}

	now := time.Now()
	job.Status = models.RenderStatusProcessing
	job.WorkerID = w.opts.WorkerID
	job.StartedAt = &now
	job.Progress = 0
	job.ErrorMsg = ""
	if err := w.repo.UpdateRenderJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	w.cacheJob(ctx, job)

	format := job.Request.Format
	span, ctx := tracing.StartRenderSpan(ctx, "render.job", job.ID, format)
	defer tracing.FinishSpan(span)

	w.logger.LogRenderEvent(job.ID, "started", job.Status, map[string]interface{}{
		"format": format,
		"source": job.Request.Source,
	})
	metrics.RecordRenderStarted(format)

	start := time.Now()
	result, err := w.render(ctx, job, span)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		metrics.RecordRenderFinished(format, models.RenderStatusCompleted, elapsed)
		return w.completeJob(ctx, job, result, span)
	case errors.Is(err, errJobCancelled):
		metrics.RecordRenderFinished(format, models.RenderStatusCancelled, elapsed)
		return w.cancelJob(ctx, job)
	case ctx.Err() != nil:
		// The worker is shutting down; put the job back for another worker.
		metrics.RecordRenderFinished(format, "interrupted", elapsed)
		w.requeueJob(job)
		return fmt.Errorf("render interrupted: %w", ctx.Err())
	default:
		metrics.RecordRenderFinished(format, models.RenderStatusFailed, elapsed)
		tracing.LogError(span, err)
		return w.failJob(ctx, job, err)
	}
}

// render localizes the source and runs the renderer under the job timeout,
// cancelling it when the job's cancel flag is raised
func (w *Worker) render(ctx context.Context, job *models.RenderJob, span opentracing.Span) (*render.Result, error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)

	var requested atomic.Bool
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		w.watchCancel(jobCtx, job.ID, &requested, cancel)
	}()
	defer func() {
		cancel()
		<-watchDone
	}()

	dir := filepath.Join(w.opts.TempDir, job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	req := job.Request
	source, cleanup, err := w.sources.Localize(jobCtx, req.Source, dir)
	if err != nil {
		if requested.Load() {
			return nil, errJobCancelled
		}
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer cleanup()
	req.Source = source
	tracing.LogEvent(span, "source_ready", "source", source)

	renderCtx := w.logger.WithJobID(job.ID).WithContext(jobCtx)
	result, err := w.renderer.Render(renderCtx, req, w.observer(jobCtx, job))
	if err == nil {
		return result, nil
	}
	if requested.Load() {
		return nil, errJobCancelled
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("render timed out after %s: %w", w.opts.Timeout, context.DeadlineExceeded)
	}
	return nil, err
}

// watchCancel polls the cancel flag until ctx is done
func (w *Worker) watchCancel(ctx context.Context, jobID string, requested *atomic.Bool, cancel context.CancelFunc) {
	ticker := time.NewTicker(w.opts.CancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.cache.IsCancelRequested(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.WithJobID(jobID).ErrorWithErr("Failed to check cancel flag", err)
				}
				continue
			}
			if ok {
				requested.Store(true)
				cancel()
				return
			}
		}
	}
}

// observer publishes progress and counts overlay and track errors
func (w *Worker) observer(ctx context.Context, job *models.RenderJob) render.Observer {
	logger := w.logger.WithJobID(job.ID)
	var (
		mu   sync.Mutex
		last = -w.opts.ProgressStep
	)

	return render.ObserverFuncs{
		Progress: func(p render.Progress) {
			mu.Lock()
			if p.Percent-last < w.opts.ProgressStep && p.Percent < 100 {
				mu.Unlock()
				return
			}
			last = p.Percent
			mu.Unlock()

			logger.LogRenderProgress(job.ID, p.Percent, p.Time, p.Frames)
			if err := w.cache.SetProgress(ctx, job.ID, p.Percent, w.opts.JobTTL); err != nil && ctx.Err() == nil {
				logger.ErrorWithErr("Failed to cache progress", err)
			}
			if err := w.repo.UpdateRenderProgress(ctx, job.ID, p.Percent); err != nil && ctx.Err() == nil {
				logger.ErrorWithErr("Failed to store progress", err)
			}
		},
		OverlayError: func(err *compositor.OverlayError) {
			metrics.RecordOverlayError(err.Kind)
			logger.WithError(err).Warn("Overlay skipped")
		},
		TrackError: func(err *audiograph.TrackError) {
			metrics.RecordTrackError()
			logger.WithError(err).Warn("Audio track left out of the mix")
		},
	}
}

// completeJob stores the rendered blob and marks the job completed
func (w *Worker) completeJob(ctx context.Context, job *models.RenderJob, result *render.Result, span opentracing.Span) error {
	blob := result.Blob
	format, _ := models.LookupFormat(blob.Format)

	key := fmt.Sprintf("renders/%s.%s", job.ID, format.Extension)
	if err := w.store.UploadBytes(ctx, key, blob.Data, blob.MediaType); err != nil {
		tracing.LogError(span, err)
		return w.failJob(ctx, job, fmt.Errorf("failed to upload render: %w", err))
	}

	url, err := w.store.GetURL(ctx, key)
	if err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to presign artifact URL", err)
	}

	artifact := &models.Artifact{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		Format:    format.Name,
		MediaType: blob.MediaType,
		Size:      int64(len(blob.Data)),
		Duration:  result.Duration,
		Frames:    result.Stats.Frames,
		URL:       url,
		Path:      key,
	}
	if err := w.repo.CreateArtifact(ctx, artifact); err != nil {
		return w.failJob(ctx, job, fmt.Errorf("failed to record artifact: %w", err))
	}

	metrics.RecordRenderOutput(format.Name, result.Duration, result.Stats.Frames, result.Stats.Duplicated, result.Stats.Dropped, result.Stats.Bytes)
	tracing.SetTag(span, "render.bytes", artifact.Size)

	now := time.Now()
	job.Status = models.RenderStatusCompleted
	job.Progress = 100
	job.CompletedAt = &now
	if err := w.repo.UpdateRenderJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	w.cacheJob(ctx, job)
	if err := w.cache.SetProgress(ctx, job.ID, 100, w.opts.JobTTL); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to cache progress", err)
	}

	w.logger.WithSessionID(result.SessionID).LogRenderEvent(job.ID, "completed", job.Status, map[string]interface{}{
		"size":         artifact.Size,
		"duration":     result.Duration,
		"frames":       result.Stats.Frames,
		"track_errors": len(result.TrackErrors),
	})

	if err := w.notifier.NotifyRenderCompleted(ctx, job, artifact); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to notify completion", err)
	}
	return nil
}

// failJob marks a job as failed. It returns nil unless the failure could
// not be recorded.
func (w *Worker) failJob(ctx context.Context, job *models.RenderJob, cause error) error {
	now := time.Now()
	job.Status = models.RenderStatusFailed
	job.ErrorMsg = cause.Error()
	job.CompletedAt = &now

	w.logger.WithJobID(job.ID).ErrorWithErr("Render failed", cause)
	metrics.RecordError("render", classify(cause))

	if err := w.repo.UpdateRenderJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	w.cacheJob(ctx, job)

	if err := w.notifier.NotifyRenderFailed(ctx, job); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to notify failure", err)
	}
	return nil
}

// cancelJob marks a job as cancelled and clears its cancel flag
func (w *Worker) cancelJob(ctx context.Context, job *models.RenderJob) error {
	now := time.Now()
	job.Status = models.RenderStatusCancelled
	job.CompletedAt = &now

	if err := w.repo.UpdateRenderJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record job cancellation: %w", err)
	}
	w.cacheJob(ctx, job)
	if err := w.cache.ClearCancel(ctx, job.ID); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to clear cancel flag", err)
	}

	w.logger.LogRenderEvent(job.ID, "cancelled", job.Status, nil)

	if err := w.notifier.NotifyRenderCancelled(ctx, job); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to notify cancellation", err)
	}
	return nil
}

// requeueJob puts an interrupted job back to pending. The worker context
// is already gone, so it uses its own.
func (w *Worker) requeueJob(job *models.RenderJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job.Status = models.RenderStatusPending
	job.Progress = 0
	job.StartedAt = nil
	if err := w.repo.UpdateRenderJob(ctx, job); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to requeue job", err)
		return
	}
	w.cacheJob(ctx, job)
}

func (w *Worker) cacheJob(ctx context.Context, job *models.RenderJob) {
	if err := w.cache.SetRenderJob(ctx, job, w.opts.JobTTL); err != nil {
		w.logger.WithJobID(job.ID).ErrorWithErr("Failed to cache job", err)
	}
}

// classify maps a render failure to an error type label
func classify(err error) string {
	switch {
	case errors.Is(err, render.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, render.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, render.ErrCoverNotReady):
		return "cover_not_ready"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "render"
}
