package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/sai034/css-video-editor/internal/cache"
	"github.com/sai034/css-video-editor/internal/database"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/render"
	"github.com/sai034/css-video-editor/pkg/models"
)

// memoryStore is an in-memory JobStore and JobRepository
type memoryStore struct {
	mu              sync.Mutex
	jobs            map[string]*models.RenderJob
	artifacts       map[string]*models.Artifact
	progressUpdates int
	failUpdates     bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:      map[string]*models.RenderJob{},
		artifacts: map[string]*models.Artifact{},
	}
}

func (m *memoryStore) put(job *models.RenderJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

func (m *memoryStore) job(id string) *models.RenderJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[id]
	return &cp
}

func (m *memoryStore) CreateRenderJob(ctx context.Context, job *models.RenderJob) error {
	m.put(job)
	return nil
}

func (m *memoryStore) GetRenderJob(ctx context.Context, id string) (*models.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryStore) UpdateRenderJob(ctx context.Context, job *models.RenderJob) error {
	m.mu.Lock()
	fail := m.failUpdates
	m.mu.Unlock()
	if fail {
		return errors.New("database unavailable")
	}
	m.put(job)
	return nil
}

func (m *memoryStore) UpdateRenderProgress(ctx context.Context, id string, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressUpdates++
	if job, ok := m.jobs[id]; ok && job.Status == models.RenderStatusProcessing {
		job.Progress = progress
	}
	return nil
}

func (m *memoryStore) ListRenderJobs(ctx context.Context, status string, limit, offset int) ([]*models.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RenderJob
	for _, job := range m.jobs {
		if status == "" || job.Status == status {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateArtifact(ctx context.Context, artifact *models.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact.JobID] = artifact
	return nil
}

func (m *memoryStore) GetArtifactByJob(ctx context.Context, jobID string) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[jobID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// memoryObjects is an in-memory ArtifactStore
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryObjects) GetURL(ctx context.Context, key string) (string, error) {
	return "https://objects.test/" + key + "?signed", nil
}

// passthroughSources hands refs back unchanged
type passthroughSources struct {
	mu      sync.Mutex
	refs    []string
	err     error
	cleaned int
}

func (p *passthroughSources) Localize(ctx context.Context, ref, dir string) (string, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", nil, p.err
	}
	p.refs = append(p.refs, ref)
	return "/local/" + ref, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cleaned++
	}, nil
}

// recordingNotifier keeps the events it was asked to send
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	last   *models.Artifact
}

func (r *recordingNotifier) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) NotifyRenderCompleted(ctx context.Context, job *models.RenderJob, artifact *models.Artifact) error {
	r.mu.Lock()
	r.last = artifact
	r.mu.Unlock()
	r.record(models.WebhookEventRenderCompleted)
	return nil
}

func (r *recordingNotifier) NotifyRenderFailed(ctx context.Context, job *models.RenderJob) error {
	r.record(models.WebhookEventRenderFailed)
	return nil
}

func (r *recordingNotifier) NotifyRenderCancelled(ctx context.Context, job *models.RenderJob) error {
	r.record(models.WebhookEventRenderCancelled)
	return nil
}

func (r *recordingNotifier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// rendererFunc adapts a function to Renderer
type rendererFunc func(ctx context.Context, req models.RenderRequest, obs render.Observer) (*render.Result, error)

func (f rendererFunc) Render(ctx context.Context, req models.RenderRequest, obs render.Observer) (*render.Result, error) {
	return f(ctx, req, obs)
}

// blockingRenderer runs until ctx ends, like a session that gets cancelled
func blockingRenderer(started chan<- struct{}) rendererFunc {
	return func(ctx context.Context, req models.RenderRequest, obs render.Observer) (*render.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, render.ErrCancelled
	}
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.Config{Level: "error", Format: "json"})
}

func testRequest() models.RenderRequest {
	return models.RenderRequest{
		Source: "clips/beach.mp4",
		Range:  models.TimeRange{Start: 1, End: 6},
		Format: models.FormatWebM,
		Overlays: models.OverlaySet{
			Subtitles: []models.Subtitle{{ID: "s1", Text: "Hello", Window: models.Window{StartTime: 0, EndTime: 2}}},
		},
	}
}

func pendingJob(id string) *models.RenderJob {
	return &models.RenderJob{
		ID:          id,
		Status:      models.RenderStatusPending,
		CallbackURL: "https://hooks.test/render",
		Request:     testRequest(),
		CreatedAt:   time.Now().Add(-time.Second),
	}
}
