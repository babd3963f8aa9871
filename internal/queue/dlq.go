package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sai034/css-video-editor/pkg/models"
)

const (
	DeadLetterQueueName    = "render_jobs_dlq"
	DeadLetterExchangeName = "vedit_dlq"
	RetryQueueName         = "render_jobs_retry"
	MaxRetries             = 3

	retryHeader  = "x-retry-count"
	reasonHeader = "x-failure-reason"
)

// SetupDeadLetterQueue sets up the dead letter queue infrastructure
func (q *Queue) SetupDeadLetterQueue() error {
	err := q.channel.ExchangeDeclare(
		DeadLetterExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		DeadLetterQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	err = q.channel.QueueBind(
		DeadLetterQueueName,
		DeadLetterQueueName,
		DeadLetterExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	// Expired retry messages flow back into the render queue
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": RenderQueueName,
	}

	_, err = q.channel.QueueDeclare(
		RetryQueueName,
		true,
		false,
		false,
		false,
		retryArgs,
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}

	q.logger.Debug().Msg("Dead letter queue infrastructure set up")
	return nil
}

// PublishToRetryQueue delays a job and sends it back to the render queue,
// or dead-letters it once MaxRetries is reached
func (q *Queue) PublishToRetryQueue(ctx context.Context, job *models.RenderJob, retryCount int) error {
	if retryCount >= MaxRetries {
		return q.PublishToDeadLetterQueue(ctx, job, "max retries exceeded")
	}

	delay := BackoffDelay(retryCount)
	headers := amqp.Table{retryHeader: int32(retryCount + 1)}

	if err := q.publish(ctx, "", RetryQueueName, job, headers, fmt.Sprintf("%d", delay.Milliseconds())); err != nil {
		return fmt.Errorf("failed to publish to retry queue: %w", err)
	}

	q.logger.Info().Str("job_id", job.ID).Int("retry", retryCount+1).Dur("delay", delay).Msg("Render job queued for retry")
	return nil
}

// PublishToDeadLetterQueue publishes a failed job to the dead letter queue
func (q *Queue) PublishToDeadLetterQueue(ctx context.Context, job *models.RenderJob, reason string) error {
	headers := amqp.Table{
		reasonHeader:  reason,
		"x-failed-at": time.Now().Format(time.RFC3339),
	}

	if err := q.publish(ctx, DeadLetterExchangeName, DeadLetterQueueName, job, headers, ""); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	q.logger.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("Render job moved to dead letter queue")
	return nil
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	info, err := q.channel.QueueInspect(DeadLetterQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	return info.Messages, nil
}

// RetryCount reads the retry header. AMQP tables carry integers with varying widths.
func RetryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// BackoffDelay is 30s doubled per retry, capped at 10 minutes
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := 30 * time.Second * time.Duration(1<<retryCount)
	if delay > 10*time.Minute {
		delay = 10 * time.Minute
	}
	return delay
}
