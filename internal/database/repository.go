package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/pkg/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db     *DB
	logger *logging.Logger
}

// NewRepository creates a new repository. logger may be nil.
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// observe records an operation's latency and outcome; call as defer r.observe(op, &err)()
func (r *Repository) observe(operation string, err *error) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		var failure error
		if *err != nil && !errors.Is(*err, ErrNotFound) {
			failure = *err
		}
		status := "success"
		if failure != nil {
			status = "error"
		}
		metrics.RecordDatabaseOperation(operation, status, elapsed.Seconds())
		if r.logger != nil {
			r.logger.LogDatabaseOperation(operation, elapsed, failure)
		}
	}
}

// Render jobs

const renderJobColumns = `id, status, progress, error_msg, worker_id, callback_url, request,
	started_at, completed_at, created_at, updated_at`

// CreateRenderJob inserts a new render job
func (r *Repository) CreateRenderJob(ctx context.Context, job *models.RenderJob) (err error) {
	defer r.observe("create_render_job", &err)()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.RenderStatusPending
	}

	query := `
		INSERT INTO render_jobs (id, status, progress, error_msg, worker_id, callback_url, request)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		job.ID, job.Status, job.Progress, job.ErrorMsg, job.WorkerID, job.CallbackURL, job.Request,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create render job: %w", err)
	}

	return nil
}

// GetRenderJob retrieves a render job by ID
func (r *Repository) GetRenderJob(ctx context.Context, id string) (job *models.RenderJob, err error) {
	defer r.observe("get_render_job", &err)()

	query := `SELECT ` + renderJobColumns + ` FROM render_jobs WHERE id = $1`

	job, err = scanRenderJob(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("render job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render job: %w", err)
	}

	return job, nil
}

// UpdateRenderJob writes a job's mutable fields
func (r *Repository) UpdateRenderJob(ctx context.Context, job *models.RenderJob) (err error) {
	defer r.observe("update_render_job", &err)()

	query := `
		UPDATE render_jobs
		SET status = $2, progress = $3, error_msg = $4, worker_id = $5,
		    started_at = $6, completed_at = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		job.ID, job.Status, job.Progress, job.ErrorMsg, job.WorkerID, job.StartedAt, job.CompletedAt,
	).Scan(&job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("render job %s: %w", job.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update render job: %w", err)
	}

	return nil
}

// UpdateRenderProgress stores progress for a running job
func (r *Repository) UpdateRenderProgress(ctx context.Context, id string, progress float64) (err error) {
	defer r.observe("update_render_progress", &err)()

	query := `
		UPDATE render_jobs
		SET progress = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3
	`

	_, err = r.db.Pool.Exec(ctx, query, id, progress, models.RenderStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update render progress: %w", err)
	}

	return nil
}

// ListRenderJobs lists jobs newest first, optionally filtered by status
func (r *Repository) ListRenderJobs(ctx context.Context, status string, limit, offset int) (jobs []*models.RenderJob, err error) {
	defer r.observe("list_render_jobs", &err)()

	query := `
		SELECT ` + renderJobColumns + `
		FROM render_jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list render jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanRenderJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan render job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanRenderJob(row pgx.Row) (*models.RenderJob, error) {
	var job models.RenderJob
	err := row.Scan(
		&job.ID, &job.Status, &job.Progress, &job.ErrorMsg, &job.WorkerID, &job.CallbackURL,
		&job.Request, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Artifacts

// CreateArtifact records a finished render's stored output
func (r *Repository) CreateArtifact(ctx context.Context, artifact *models.Artifact) (err error) {
	defer r.observe("create_artifact", &err)()

	if artifact.ID == "" {
		artifact.ID = uuid.New().String()
	}

	query := `
		INSERT INTO render_artifacts (id, job_id, format, media_type, size, duration, frames, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		artifact.ID, artifact.JobID, artifact.Format, artifact.MediaType,
		artifact.Size, artifact.Duration, artifact.Frames, artifact.Path,
	).Scan(&artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	return nil
}

// GetArtifactByJob retrieves the artifact of a completed job
func (r *Repository) GetArtifactByJob(ctx context.Context, jobID string) (artifact *models.Artifact, err error) {
	defer r.observe("get_artifact", &err)()

	query := `
		SELECT id, job_id, format, media_type, size, duration, frames, path, created_at
		FROM render_artifacts
		WHERE job_id = $1
	`

	var a models.Artifact
	err = r.db.Pool.QueryRow(ctx, query, jobID).Scan(
		&a.ID, &a.JobID, &a.Format, &a.MediaType, &a.Size, &a.Duration, &a.Frames, &a.Path, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("artifact for job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return &a, nil
}

// Webhook deliveries

// CreateDelivery creates a new webhook delivery record
func (r *Repository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) (err error) {
	defer r.observe("create_webhook_delivery", &err)()

	query := `
		INSERT INTO webhook_deliveries (id, job_id, url, event, payload, status, status_code,
		                                response_body, retry_count, next_retry_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		delivery.ID, delivery.JobID, delivery.URL, delivery.Event, delivery.Payload, delivery.Status,
		delivery.StatusCode, delivery.ResponseBody, delivery.RetryCount, delivery.NextRetryAt,
		delivery.CompletedAt,
	).Scan(&delivery.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}

	return nil
}

// UpdateDelivery records the outcome of a delivery attempt
func (r *Repository) UpdateDelivery(ctx context.Context, delivery *models.WebhookDelivery) (err error) {
	defer r.observe("update_webhook_delivery", &err)()

	query := `
		UPDATE webhook_deliveries
		SET status = $2, status_code = $3, response_body = $4, retry_count = $5,
		    next_retry_at = $6, completed_at = $7
		WHERE id = $1
	`

	_, err = r.db.Pool.Exec(ctx, query,
		delivery.ID, delivery.Status, delivery.StatusCode, delivery.ResponseBody,
		delivery.RetryCount, delivery.NextRetryAt, delivery.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}

	return nil
}

// GetPendingDeliveries returns pending deliveries whose retry time has passed
func (r *Repository) GetPendingDeliveries(ctx context.Context, limit int) (deliveries []*models.WebhookDelivery, err error) {
	defer r.observe("get_pending_deliveries", &err)()

	query := `
		SELECT id, job_id, url, event, payload, status, status_code, response_body,
		       retry_count, next_retry_at, created_at, completed_at
		FROM webhook_deliveries
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= CURRENT_TIMESTAMP)
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, models.WebhookDeliveryStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deliveries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.WebhookDelivery
		err := rows.Scan(
			&d.ID, &d.JobID, &d.URL, &d.Event, &d.Payload, &d.Status, &d.StatusCode, &d.ResponseBody,
			&d.RetryCount, &d.NextRetryAt, &d.CreatedAt, &d.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}
