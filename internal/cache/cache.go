package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

func jobKey(jobID string) string      { return fmt.Sprintf("job:%s", jobID) }
func progressKey(jobID string) string { return fmt.Sprintf("job:progress:%s", jobID) }
func cancelKey(jobID string) string   { return fmt.Sprintf("job:cancel:%s", jobID) }

// Render Job Operations

// SetRenderJob caches a render job's current state
func (c *Cache) SetRenderJob(ctx context.Context, job *models.RenderJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal render job: %w", err)
	}

	return c.client.Set(ctx, jobKey(job.ID), data, ttl).Err()
}

// GetRenderJob retrieves a render job from cache. A miss returns nil, nil.
func (c *Cache) GetRenderJob(ctx context.Context, jobID string) (*models.RenderJob, error) {
	data, err := c.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("render_job", false)
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get render job from cache: %w", err)
	}
	metrics.RecordCacheAccess("render_job", true)

	var job models.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render job: %w", err)
	}

	return &job, nil
}

// DeleteRenderJob removes a render job and its progress from cache
func (c *Cache) DeleteRenderJob(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, jobKey(jobID), progressKey(jobID)).Err()
}

// SetProgress caches render progress (percent of output rendered) for quick polling
func (c *Cache) SetProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error {
	return c.client.Set(ctx, progressKey(jobID), progress, ttl).Err()
}

// GetProgress retrieves render progress. ok is false on a cache miss.
func (c *Cache) GetProgress(ctx context.Context, jobID string) (progress float64, ok bool, err error) {
	progress, err = c.client.Get(ctx, progressKey(jobID)).Float64()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("render_progress", false)
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get render progress: %w", err)
	}
	metrics.RecordCacheAccess("render_progress", true)
	return progress, true, nil
}

// Cancellation flags

// RequestCancel flags a job for cancellation. Workers poll the flag while rendering.
func (c *Cache) RequestCancel(ctx context.Context, jobID string, ttl time.Duration) error {
	return c.client.Set(ctx, cancelKey(jobID), time.Now().Unix(), ttl).Err()
}

// IsCancelRequested reports whether a cancel flag is set for the job
func (c *Cache) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	n, err := c.client.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel flag: %w", err)
	}
	return n > 0, nil
}

// ClearCancel removes a job's cancel flag
func (c *Cache) ClearCancel(ctx context.Context, jobID string) error {
	return c.client.Del(ctx, cancelKey(jobID)).Err()
}

// Rate Limiting Operations

// CheckRateLimit counts a request against key in a fixed window and reports
// whether it is still within limit
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock. Workers lock a job
// before rendering so a redelivered message is not rendered twice.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Ping is the health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
