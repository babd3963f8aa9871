package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/metrics"
)

// Storage provides object storage operations
type Storage struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
	logger     *logging.Logger
}

// New creates a new storage client. logger may be nil.
func New(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		urlExpiry:  expiry,
		logger:     logger,
	}, nil
}

// Bucket returns the default bucket name
func (s *Storage) Bucket() string {
	return s.bucketName
}

// Upload uploads a stream to storage
func (s *Storage) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, s.bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	s.record("upload", s.bucketName, objectName, start, size, err)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	return nil
}

// UploadBytes stores an in-memory artifact
func (s *Storage) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentType(objectName)
	}
	return s.Upload(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType)
}

// GetObject reads an object from any bucket into memory
func (s *Storage) GetObject(ctx context.Context, bucket, objectName string) ([]byte, error) {
	if bucket == "" {
		bucket = s.bucketName
	}

	start := time.Now()
	object, err := s.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		s.record("download", bucket, objectName, start, 0, err)
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	s.record("download", bucket, objectName, start, int64(len(data)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, objectName, err)
	}
	return data, nil
}

// DownloadFile downloads an object from any bucket to the local filesystem
func (s *Storage) DownloadFile(ctx context.Context, bucket, objectName, filePath string) error {
	if bucket == "" {
		bucket = s.bucketName
	}

	start := time.Now()
	err := s.client.FGetObject(ctx, bucket, objectName, filePath, minio.GetObjectOptions{})
	s.record("download", bucket, objectName, start, 0, err)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	return nil
}

// Delete deletes an object from storage
func (s *Storage) Delete(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// GetURL returns a presigned download URL for an object
func (s *Storage) GetURL(ctx context.Context, objectName string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, s.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}

	return url.String(), nil
}

func (s *Storage) record(operation, bucket, key string, start time.Time, size int64, err error) {
	elapsed := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordStorageOperation(operation, status, elapsed.Seconds(), size)
	if s.logger != nil {
		s.logger.LogStorageOperation(operation, bucket, key, size, elapsed, err)
	}
}

// ContentType returns the content type based on file extension
func ContentType(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".ogg":
		return "video/ogg"
	case ".srt":
		return "application/x-subrip"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
