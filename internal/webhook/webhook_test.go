package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sai034/css-video-editor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mu         sync.Mutex
	deliveries []*models.WebhookDelivery
	updates    int
}

func (m *mockRepository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, delivery)
	return nil
}

func (m *mockRepository) UpdateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return nil
}

func (m *mockRepository) GetPendingDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, d := range m.deliveries {
		if d.Status == models.WebhookDeliveryStatusPending {
			out = append(out, d)
		}
	}
	return out, nil
}

type received struct {
	body      []byte
	signature string
	event     string
}

func newReceiver(t *testing.T, status int) (*httptest.Server, chan received) {
	t.Helper()
	ch := make(chan received, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- received{
			body:      body,
			signature: r.Header.Get("X-Webhook-Signature"),
			event:     r.Header.Get("X-Webhook-Event"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNotifyRenderCompleted(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusOK)
	repo := &mockRepository{}
	svc := NewService(repo, "s3cret", time.Second, 0, zerolog.Nop())

	job := &models.RenderJob{ID: "job-1", Status: models.RenderStatusCompleted, CallbackURL: srv.URL}
	artifact := &models.Artifact{JobID: "job-1", Format: "webm", Size: 10}

	require.NoError(t, svc.NotifyRenderCompleted(context.Background(), job, artifact))
	svc.Wait()

	got := <-ch
	assert.Equal(t, models.WebhookEventRenderCompleted, got.event)
	assert.True(t, Verify(got.body, "s3cret", got.signature))

	var event struct {
		Event string                 `json:"event"`
		Data  models.RenderEventData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &event))
	assert.Equal(t, "job-1", event.Data.JobID)
	require.NotNil(t, event.Data.Artifact)
	assert.Equal(t, "webm", event.Data.Artifact.Format)

	require.Len(t, repo.deliveries, 1)
	d := repo.deliveries[0]
	assert.Equal(t, models.WebhookDeliveryStatusDelivered, d.Status)
	assert.Equal(t, http.StatusOK, d.StatusCode)
	assert.NotNil(t, d.CompletedAt)
}

func TestNotify_NoCallback(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, "", time.Second, 0, zerolog.Nop())

	delivery, err := svc.Notify(context.Background(), "job-2", "", models.WebhookEventRenderFailed, nil)
	require.NoError(t, err)
	assert.Nil(t, delivery)
	assert.Empty(t, repo.deliveries)
}

func TestDeliver_FailureSchedulesRetry(t *testing.T) {
	srv, ch := newReceiver(t, http.StatusInternalServerError)
	repo := &mockRepository{}
	svc := NewService(repo, "", time.Second, 2, zerolog.Nop())

	job := &models.RenderJob{ID: "job-3", Status: models.RenderStatusFailed, ErrorMsg: "encoder exited", CallbackURL: srv.URL}
	require.NoError(t, svc.NotifyRenderFailed(context.Background(), job))
	svc.Wait()
	got := <-ch
	assert.Empty(t, got.signature)

	d := repo.deliveries[0]
	assert.Equal(t, models.WebhookDeliveryStatusPending, d.Status)
	assert.Equal(t, 1, d.RetryCount)
	require.NotNil(t, d.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *d.NextRetryAt, 5*time.Second)

	// Not yet due
	svc.RetryPending(context.Background())
	assert.Equal(t, 1, d.RetryCount)

	past := time.Now().Add(-time.Second)
	d.NextRetryAt = &past
	svc.RetryPending(context.Background())
	<-ch
	assert.Equal(t, 2, d.RetryCount)
	assert.Equal(t, models.WebhookDeliveryStatusPending, d.Status)

	d.NextRetryAt = &past
	svc.RetryPending(context.Background())
	<-ch
	assert.Equal(t, 3, d.RetryCount)
	assert.Equal(t, models.WebhookDeliveryStatusFailed, d.Status)
	assert.Nil(t, d.NextRetryAt)
	assert.NotNil(t, d.CompletedAt)
}

func TestDeliver_Unreachable(t *testing.T) {
	repo := &mockRepository{}
	svc := NewService(repo, "", 200*time.Millisecond, 0, zerolog.Nop())

	d := &models.WebhookDelivery{ID: "d-1", URL: "http://127.0.0.1:1/hook", Event: models.WebhookEventRenderCancelled, Payload: "{}"}
	svc.Deliver(context.Background(), d)

	assert.Equal(t, 1, d.RetryCount)
	assert.Equal(t, 0, d.StatusCode)
	assert.Equal(t, models.WebhookDeliveryStatusPending, d.Status)
}

func TestSignVerify(t *testing.T) {
	payload := []byte(`{"event":"render.completed"}`)
	sig := Sign(payload, "key")

	assert.Len(t, sig, len("sha256=")+64)
	assert.True(t, Verify(payload, "key", sig))
	assert.False(t, Verify(payload, "other", sig))
	assert.False(t, Verify([]byte("tampered"), "key", sig))
}
