// Package scheduler recovers render jobs that were dropped on the way to a
// worker or abandoned by one that died mid-render.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/clock"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Repository lists and updates render jobs
type Repository interface {
	ListRenderJobs(ctx context.Context, status string, limit, offset int) ([]*models.RenderJob, error)
	UpdateRenderJob(ctx context.Context, job *models.RenderJob) error
}

// JobPublisher puts a job back on the render queue
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.RenderJob) error
}

// Options tune a Reaper
type Options struct {
	// Interval between sweeps
	Interval time.Duration
	// StaleAfter is how long a job may stay processing before its worker is
	// presumed dead. It must exceed the render timeout.
	StaleAfter time.Duration
	// PendingAfter is how long a job may wait before it is published again.
	// Zero disables republishing pending jobs.
	PendingAfter time.Duration
	// BatchSize caps the jobs requeued per sweep, oldest first
	BatchSize int
}

// Reaper periodically requeues stale jobs
type Reaper struct {
	repo      Repository
	publisher JobPublisher
	opts      Options
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewReaper creates a reaper. A nil clock uses wall time.
func NewReaper(repo Repository, publisher JobPublisher, opts Options, clk clock.Clock, logger zerolog.Logger) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Reaper{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		clock:     clk,
		logger:    logger,
	}
}

// Run sweeps immediately and then every Interval until ctx is done
func (r *Reaper) Run(ctx context.Context) {
	r.sweepAndLog(ctx)

	ticker := r.clock.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Job sweep failed")
		metrics.RecordError("scheduler", "sweep")
	}
	if n > 0 {
		r.logger.Info().Int("requeued", n).Msg("Requeued stale render jobs")
	}
}

// Sweep requeues up to BatchSize stale jobs and returns how many were
// requeued
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	pq := &PriorityQueue{}
	heap.Init(pq)

	processing, err := r.repo.ListRenderJobs(ctx, models.RenderStatusProcessing, r.opts.BatchSize*4, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	for _, job := range processing {
		if job.StartedAt != nil && now.Sub(*job.StartedAt) > r.opts.StaleAfter {
			heap.Push(pq, &QueueItem{Job: job, Since: *job.StartedAt})
		}
	}

	if r.opts.PendingAfter > 0 {
		pending, err := r.repo.ListRenderJobs(ctx, models.RenderStatusPending, r.opts.BatchSize*4, 0)
		if err != nil {
			return 0, fmt.Errorf("failed to list pending jobs: %w", err)
		}
		for _, job := range pending {
			since := job.UpdatedAt
			if since.IsZero() {
				since = job.CreatedAt
			}
			if now.Sub(since) > r.opts.PendingAfter {
				heap.Push(pq, &QueueItem{Job: job, Since: since})
			}
		}
	}

	requeued := 0
	for requeued < r.opts.BatchSize && pq.Len() > 0 {
		item := heap.Pop(pq).(*QueueItem)
		if err := r.requeue(ctx, item.Job, now); err != nil {
			r.logger.Warn().Err(err).Str("job_id", item.Job.ID).Msg("Failed to requeue job")
			metrics.RecordError("scheduler", "requeue")
			continue
		}
		requeued++
	}
	return requeued, nil
}

func (r *Reaper) requeue(ctx context.Context, job *models.RenderJob, now time.Time) error {
	if job.Status == models.RenderStatusProcessing {
		r.logger.Warn().
			Str("job_id", job.ID).
			Str("worker_id", job.WorkerID).
			Msg("Worker abandoned render job")
		job.Status = models.RenderStatusPending
		job.WorkerID = ""
		job.StartedAt = nil
		job.Progress = 0
	}
	job.UpdatedAt = now

	if err := r.repo.UpdateRenderJob(ctx, job); err != nil {
		return err
	}
	return r.publisher.PublishJob(ctx, job)
}

// PriorityQueue orders jobs by how long they have been waiting, oldest
// first
type PriorityQueue []*QueueItem

// QueueItem is a job and the time it started waiting
type QueueItem struct {
	Job   *models.RenderJob
	Since time.Time
	index int
}

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].Since.Before(pq[j].Since)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	item := x.(*QueueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}
