package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sai034/css-video-editor/internal/database"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/render"
	"github.com/sai034/css-video-editor/pkg/models"
)

var (
	// ErrInvalidRequest is returned for render requests that can never succeed
	ErrInvalidRequest = errors.New("invalid render request")
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("render job not found")
	// ErrJobFinished is returned when cancelling a job that already ended
	ErrJobFinished = errors.New("render job already finished")
)

// MaxFPS is the highest capture rate a request may ask for
const MaxFPS = 120

// JobRepository is the persistence used by Jobs
type JobRepository interface {
	CreateRenderJob(ctx context.Context, job *models.RenderJob) error
	GetRenderJob(ctx context.Context, id string) (*models.RenderJob, error)
	UpdateRenderJob(ctx context.Context, job *models.RenderJob) error
	ListRenderJobs(ctx context.Context, status string, limit, offset int) ([]*models.RenderJob, error)
	GetArtifactByJob(ctx context.Context, jobID string) (*models.Artifact, error)
}

// StatusCache is the cache used by Jobs
type StatusCache interface {
	SetRenderJob(ctx context.Context, job *models.RenderJob, ttl time.Duration) error
	GetRenderJob(ctx context.Context, jobID string) (*models.RenderJob, error)
	GetProgress(ctx context.Context, jobID string) (float64, bool, error)
	RequestCancel(ctx context.Context, jobID string, ttl time.Duration) error
}

// Publisher hands jobs to workers
type Publisher interface {
	PublishJob(ctx context.Context, job *models.RenderJob) error
}

// URLSigner issues download URLs for stored artifacts
type URLSigner interface {
	GetURL(ctx context.Context, key string) (string, error)
}

// JobStatus is a job together with its artifact once it has one
type JobStatus struct {
	*models.RenderJob
	Artifact *models.Artifact `json:"artifact,omitempty"`
}

// Jobs records render jobs and queues them for workers
type Jobs struct {
	repo     JobRepository
	cache    StatusCache
	queue    Publisher
	urls     URLSigner
	notifier Notifier
	jobTTL   time.Duration
	logger   *logging.Logger
}

// NewJobs creates the API side of the render service
func NewJobs(repo JobRepository, cache StatusCache, queue Publisher, urls URLSigner, notifier Notifier, jobTTL time.Duration, logger *logging.Logger) *Jobs {
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	return &Jobs{
		repo:     repo,
		cache:    cache,
		queue:    queue,
		urls:     urls,
		notifier: notifier,
		jobTTL:   jobTTL,
		logger:   logger,
	}
}

// ValidateRequest checks what can be checked before the source is opened.
// The range is checked against the source duration when the render starts.
func ValidateRequest(req *models.RenderRequest) error {
	if strings.TrimSpace(req.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}

	format, ok := models.LookupFormat(req.Format)
	if !ok || !format.Editable {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, render.ErrUnsupportedFormat, req.Format)
	}
	req.Format = format.Name

	if req.Range.Start < 0 || req.Range.Start >= req.Range.End {
		return fmt.Errorf("%w: %w: [%.3f, %.3f]", ErrInvalidRequest, render.ErrInvalidRange, req.Range.Start, req.Range.End)
	}
	if req.FPS < 0 || req.FPS > MaxFPS {
		return fmt.Errorf("%w: fps must be between 1 and %d", ErrInvalidRequest, MaxFPS)
	}
	return nil
}

// Submit validates req, records a pending job and queues it
func (j *Jobs) Submit(ctx context.Context, req models.RenderRequest, callbackURL string) (*models.RenderJob, error) {
	if err := ValidateRequest(&req); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &models.RenderJob{
		ID:          uuid.New().String(),
		Status:      models.RenderStatusPending,
		CallbackURL: callbackURL,
		Request:     req,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := j.repo.CreateRenderJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	j.cacheJob(ctx, job)

	if err := j.queue.PublishJob(ctx, job); err != nil {
		job.Status = models.RenderStatusFailed
		job.ErrorMsg = "failed to queue job"
		if uerr := j.repo.UpdateRenderJob(ctx, job); uerr != nil {
			j.logger.WithJobID(job.ID).ErrorWithErr("Failed to record queue failure", uerr)
		}
		j.cacheJob(ctx, job)
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	j.logger.LogRenderEvent(job.ID, "submitted", job.Status, map[string]interface{}{
		"format": req.Format,
		"start":  req.Range.Start,
		"end":    req.Range.End,
	})
	return job, nil
}

// Get returns a job, reading through the cache. Live progress comes from
// the cache while the job is processing.
func (j *Jobs) Get(ctx context.Context, id string) (*JobStatus, error) {
	job, err := j.cache.GetRenderJob(ctx, id)
	if err != nil {
		j.logger.WithJobID(id).ErrorWithErr("Failed to read cached job", err)
	}
	if job == nil {
		job, err = j.repo.GetRenderJob(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get job: %w", err)
		}
		j.cacheJob(ctx, job)
	}

	if job.Status == models.RenderStatusProcessing {
		if progress, ok, err := j.cache.GetProgress(ctx, id); err == nil && ok {
			job.Progress = progress
		}
	}

	status := &JobStatus{RenderJob: job}
	if job.Status != models.RenderStatusCompleted {
		return status, nil
	}

	artifact, err := j.repo.GetArtifactByJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	// Stored URLs expire, so a fresh one is issued on every read
	if url, err := j.urls.GetURL(ctx, artifact.Path); err == nil {
		artifact.URL = url
	} else {
		j.logger.WithJobID(id).ErrorWithErr("Failed to presign artifact URL", err)
	}
	status.Artifact = artifact
	return status, nil
}

// List returns jobs newest first, optionally filtered by status
func (j *Jobs) List(ctx context.Context, status string, limit, offset int) ([]*models.RenderJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return j.repo.ListRenderJobs(ctx, status, limit, offset)
}

// Cancel asks for a job to stop. A pending job is cancelled at once; a
// processing job is cancelled by its worker, which polls the flag.
func (j *Jobs) Cancel(ctx context.Context, id string) (*models.RenderJob, error) {
	job, err := j.repo.GetRenderJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job.IsTerminal() {
		return job, ErrJobFinished
	}

	if err := j.cache.RequestCancel(ctx, id, j.jobTTL); err != nil {
		return nil, fmt.Errorf("failed to flag job for cancellation: %w", err)
	}

	if job.Status == models.RenderStatusPending {
		now := time.Now()
		job.Status = models.RenderStatusCancelled
		job.CompletedAt = &now
		if err := j.repo.UpdateRenderJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to cancel job: %w", err)
		}
		j.cacheJob(ctx, job)
		if err := j.notifier.NotifyRenderCancelled(ctx, job); err != nil {
			j.logger.WithJobID(id).ErrorWithErr("Failed to notify cancellation", err)
		}
	}

	j.logger.LogRenderEvent(id, "cancel_requested", job.Status, nil)
	return job, nil
}

func (j *Jobs) cacheJob(ctx context.Context, job *models.RenderJob) {
	if err := j.cache.SetRenderJob(ctx, job, j.jobTTL); err != nil {
		j.logger.WithJobID(job.ID).ErrorWithErr("Failed to cache job", err)
	}
}
