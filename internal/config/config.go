package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Render   RenderConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
	Metrics  MetricsConfig
	Webhook  WebhookConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit is requests per second per client, Burst the bucket size
	RateLimit float64
	Burst     int
	// MaxBodyBytes caps render request bodies
	MaxBodyBytes int64
	// SubmitLimit is renders per minute per client across all replicas
	SubmitLimit int64
	// AuthSecret, when set, requires HS256 bearer tokens on the API
	AuthSecret string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// JobTTL is how long job status and progress stay cached
	JobTTL time.Duration
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	// URLExpiry is the lifetime of presigned artifact URLs
	URLExpiry time.Duration
	// FetchTimeout bounds http(s) overlay and track downloads
	FetchTimeout time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// RenderConfig holds render pipeline configuration
type RenderConfig struct {
	WorkerCount       int
	TempDir           string
	FFmpegPath        string
	FFprobePath       string
	DefaultFPS        int
	SampleRate        int
	Channels          int
	VideoBitrate      string
	AudioBitrate      string
	ChunkSize         int
	DecodeConcurrency int
	// Timeout bounds a whole render job
	Timeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// WebhookConfig holds callback delivery configuration
type WebhookConfig struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v)
}

// Default returns the configuration used when no file is given
func Default() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VEDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values viper cannot check on its own
func (c *Config) Validate() error {
	if c.Render.DefaultFPS <= 0 || c.Render.DefaultFPS > 120 {
		return fmt.Errorf("render.defaultFPS must be between 1 and 120, got %d", c.Render.DefaultFPS)
	}
	if c.Render.SampleRate <= 0 {
		return fmt.Errorf("render.sampleRate must be positive, got %d", c.Render.SampleRate)
	}
	if c.Render.Channels < 1 || c.Render.Channels > 2 {
		return fmt.Errorf("render.channels must be 1 or 2, got %d", c.Render.Channels)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "5m")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.rateLimit", 10)
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.maxBodyBytes", 4*1024*1024)
	v.SetDefault("server.submitLimit", 30)
	v.SetDefault("server.authSecret", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "vedit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.jobTTL", "24h")

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "renders")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.urlExpiry", "1h")
	v.SetDefault("storage.fetchTimeout", "60s")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Render defaults
	v.SetDefault("render.workerCount", 2)
	v.SetDefault("render.tempDir", "/tmp/vedit")
	v.SetDefault("render.ffmpegPath", "ffmpeg")
	v.SetDefault("render.ffprobePath", "ffprobe")
	v.SetDefault("render.defaultFPS", 30)
	v.SetDefault("render.sampleRate", 48000)
	v.SetDefault("render.channels", 2)
	v.SetDefault("render.videoBitrate", "2500k")
	v.SetDefault("render.audioBitrate", "128k")
	v.SetDefault("render.chunkSize", 64*1024)
	v.SetDefault("render.decodeConcurrency", 4)
	v.SetDefault("render.timeout", "30m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "vedit")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "30s")
	v.SetDefault("webhook.maxRetries", 6)
}
