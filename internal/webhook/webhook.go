package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Retry delays after each failed attempt; a delivery is abandoned once they run out
var retryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	4 * time.Hour,
	12 * time.Hour,
}

// maxResponseBody bounds how much of a receiver's response is stored
const maxResponseBody = 4096

// Repository defines the interface for webhook persistence
type Repository interface {
	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	GetPendingDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error)
}

// Service delivers render events to job callback URLs and retries failures
type Service struct {
	client     *http.Client
	repo       Repository
	secret     string
	maxRetries int
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewService creates a new webhook service. Payloads are signed when secret is set.
func NewService(repo Repository, secret string, timeout time.Duration, maxRetries int, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 || maxRetries > len(retryDelays) {
		maxRetries = len(retryDelays)
	}
	return &Service{
		client:     &http.Client{Timeout: timeout},
		repo:       repo,
		secret:     secret,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Notify records a delivery of event to url and attempts it in the background.
// An empty url means the job asked for no callback.
func (s *Service) Notify(ctx context.Context, jobID, url, event string, data interface{}) (*models.WebhookDelivery, error) {
	if url == "" {
		return nil, nil
	}

	payload, err := json.Marshal(models.WebhookEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	delivery := &models.WebhookDelivery{
		ID:      uuid.New().String(),
		JobID:   jobID,
		URL:     url,
		Event:   event,
		Payload: string(payload),
		Status:  models.WebhookDeliveryStatusPending,
	}

	if err := s.repo.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Deliver(context.Background(), delivery)
	}()

	return delivery, nil
}

// Wait blocks until background deliveries started by Notify have finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// Deliver makes one delivery attempt and records its outcome
func (s *Service) Deliver(ctx context.Context, delivery *models.WebhookDelivery) {
	payload := []byte(delivery.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(payload))
	if err != nil {
		s.markDeliveryFailed(ctx, delivery, 0, fmt.Sprintf("failed to create request: %v", err))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vedit-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Delivery", delivery.ID)
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.markDeliveryFailed(ctx, delivery, 0, fmt.Sprintf("failed to send request: %v", err))
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.markDeliveryFailed(ctx, delivery, resp.StatusCode, string(body))
		return
	}

	now := time.Now()
	delivery.Status = models.WebhookDeliveryStatusDelivered
	delivery.StatusCode = resp.StatusCode
	delivery.ResponseBody = string(body)
	delivery.NextRetryAt = nil
	delivery.CompletedAt = &now
	metrics.RecordWebhookDelivery(delivery.Event, true)

	if err := s.repo.UpdateDelivery(ctx, delivery); err != nil {
		s.logger.Error().Err(err).Str("delivery_id", delivery.ID).Msg("Failed to update delivery")
	}
}

// markDeliveryFailed records a failed attempt and schedules the next retry
func (s *Service) markDeliveryFailed(ctx context.Context, delivery *models.WebhookDelivery, statusCode int, responseBody string) {
	delivery.StatusCode = statusCode
	delivery.ResponseBody = responseBody
	delivery.RetryCount++
	metrics.RecordWebhookDelivery(delivery.Event, false)

	if delivery.RetryCount <= s.maxRetries {
		nextRetry := time.Now().Add(retryDelays[delivery.RetryCount-1])
		delivery.NextRetryAt = &nextRetry
		delivery.Status = models.WebhookDeliveryStatusPending
	} else {
		now := time.Now()
		delivery.Status = models.WebhookDeliveryStatusFailed
		delivery.NextRetryAt = nil
		delivery.CompletedAt = &now
	}

	s.logger.Warn().
		Str("delivery_id", delivery.ID).
		Str("job_id", delivery.JobID).
		Int("status_code", statusCode).
		Int("retry_count", delivery.RetryCount).
		Str("status", delivery.Status).
		Msg("Webhook delivery failed")

	if err := s.repo.UpdateDelivery(ctx, delivery); err != nil {
		s.logger.Error().Err(err).Str("delivery_id", delivery.ID).Msg("Failed to update delivery")
	}
}

// Sign returns the HMAC-SHA256 signature header value for payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature header value in constant time
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// RetryWorker retries due deliveries every interval until ctx is done
func (s *Service) RetryWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RetryPending(ctx)
		}
	}
}

// RetryPending makes one attempt at every due pending delivery
func (s *Service) RetryPending(ctx context.Context) {
	deliveries, err := s.repo.GetPendingDeliveries(ctx, 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get pending deliveries")
		return
	}

	now := time.Now()
	for _, delivery := range deliveries {
		if delivery.NextRetryAt != nil && now.Before(*delivery.NextRetryAt) {
			continue
		}
		s.Deliver(ctx, delivery)
	}
}

// NotifyRenderCompleted sends render.completed with the stored artifact
func (s *Service) NotifyRenderCompleted(ctx context.Context, job *models.RenderJob, artifact *models.Artifact) error {
	_, err := s.Notify(ctx, job.ID, job.CallbackURL, models.WebhookEventRenderCompleted, models.RenderEventData{
		JobID:    job.ID,
		Status:   job.Status,
		Artifact: artifact,
	})
	return err
}

// NotifyRenderFailed sends render.failed with the failure reason
func (s *Service) NotifyRenderFailed(ctx context.Context, job *models.RenderJob) error {
	_, err := s.Notify(ctx, job.ID, job.CallbackURL, models.WebhookEventRenderFailed, models.RenderEventData{
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.ErrorMsg,
	})
	return err
}

// NotifyRenderCancelled sends render.cancelled
func (s *Service) NotifyRenderCancelled(ctx context.Context, job *models.RenderJob) error {
	_, err := s.Notify(ctx, job.ID, job.CallbackURL, models.WebhookEventRenderCancelled, models.RenderEventData{
		JobID:  job.ID,
		Status: job.Status,
	})
	return err
}
