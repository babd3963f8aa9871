package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/pkg/models"
)

const (
	RenderQueueName = "render_jobs"
	ExchangeName    = "vedit"
)

// Handler processes one render job. A returned error sends the job to the
// retry queue; handlers report render failures on the job itself and return nil.
type Handler func(ctx context.Context, job *models.RenderJob) error

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// New creates a new queue client and declares the render topology
func New(cfg config.QueueConfig, logger zerolog.Logger) (*Queue, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{conn: conn, channel: channel, logger: logger}
	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		RenderQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = q.channel.QueueBind(
		RenderQueueName,
		RenderQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishJob publishes a render job to the queue
func (q *Queue) PublishJob(ctx context.Context, job *models.RenderJob) error {
	return q.publish(ctx, ExchangeName, RenderQueueName, job, amqp.Table{retryHeader: int32(0)}, "")
}

func (q *Queue) publish(ctx context.Context, exchange, key string, job *models.RenderJob, headers amqp.Table, expiration string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal render job: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.ID,
			Body:         body,
			Timestamp:    time.Now(),
			Headers:      headers,
			Expiration:   expiration,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish render job: %w", err)
	}

	return nil
}

// ConsumeJobs starts consuming render jobs. prefetch bounds how many jobs
// this consumer holds unacknowledged at once.
func (q *Queue) ConsumeJobs(ctx context.Context, prefetch int, handler Handler) error {
	if prefetch < 1 {
		prefetch = 1
	}
	if err := q.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		RenderQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	// One handler goroutine per prefetched message
	for i := 0; i < prefetch; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.handle(ctx, msg, handler)
				}
			}
		}()
	}

	return nil
}

// Wait blocks until the consumers started by ConsumeJobs have returned
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) handle(ctx context.Context, msg amqp.Delivery, handler Handler) {
	job, err := DecodeJob(msg.Body)
	if err != nil {
		q.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("Dropping malformed render job")
		msg.Nack(false, false)
		return
	}

	if err := handler(ctx, job); err != nil {
		retries := RetryCount(msg.Headers)
		q.logger.Warn().Err(err).Str("job_id", job.ID).Int("retry", retries).Msg("Render job failed, scheduling retry")
		if pubErr := q.PublishToRetryQueue(ctx, job, retries); pubErr != nil {
			q.logger.Error().Err(pubErr).Str("job_id", job.ID).Msg("Failed to schedule retry, requeueing")
			msg.Nack(false, true)
			return
		}
	}
	msg.Ack(false)
}

// DecodeJob parses a queued render job
func DecodeJob(body []byte) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render job: %w", err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("render job has no id")
	}
	return &job, nil
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(RenderQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
