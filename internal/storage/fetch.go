package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxFetchBytes caps in-memory fetches of overlay images and audio tracks
const DefaultMaxFetchBytes = 256 << 20

var (
	// ErrEmptyRef is returned for an empty resource reference
	ErrEmptyRef = errors.New("empty resource reference")
	// ErrTooLarge is returned when a fetched resource exceeds the size cap
	ErrTooLarge = errors.New("resource exceeds size limit")
	// ErrNoObjectStore is returned for object references when no store is configured
	ErrNoObjectStore = errors.New("object storage not configured")
)

// ObjectStore is the subset of Storage the fetcher needs
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, objectName string) ([]byte, error)
	DownloadFile(ctx context.Context, bucket, objectName, filePath string) error
}

// Fetcher resolves resource references used by render requests.
//
// A reference is one of
//
//	s3://bucket/key     object in any bucket
//	http://, https://   fetched over HTTP
//	data:...            inline data URL
//	file:///path        local file
//	anything else       local file if it exists, else an object key in the default bucket
type Fetcher struct {
	objects  ObjectStore
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher. objects may be nil for local-only use.
func NewFetcher(objects ObjectStore, timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		objects:  objects,
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxFetchBytes,
		logger:   logger,
	}
}

// SetMaxBytes overrides the in-memory size cap
func (f *Fetcher) SetMaxBytes(n int64) {
	f.maxBytes = n
}

// Fetch returns the bytes behind ref
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmptyRef
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := splitObjectURL(ref)
		if err != nil {
			return nil, err
		}
		return f.getObject(ctx, bucket, key)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref)
	case strings.HasPrefix(ref, "file://"):
		return f.readFile(strings.TrimPrefix(ref, "file://"))
	}

	if _, err := os.Stat(ref); err == nil || f.objects == nil {
		return f.readFile(ref)
	}
	return f.getObject(ctx, "", ref)
}

// Localize returns something ffmpeg can open directly: a local path or an
// http(s) URL. Objects are downloaded into dir and removed by cleanup.
func (f *Fetcher) Localize(ctx context.Context, ref, dir string) (path string, cleanup func(), err error) {
	noop := func() {}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", noop, ErrEmptyRef
	}

	var bucket, key string
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, noop, nil
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), noop, nil
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err = splitObjectURL(ref)
		if err != nil {
			return "", noop, err
		}
	default:
		if _, statErr := os.Stat(ref); statErr == nil || f.objects == nil {
			return ref, noop, nil
		}
		key = ref
	}

	if f.objects == nil {
		return "", noop, ErrNoObjectStore
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "source-*"+filepath.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp.Close()
	cleanup = func() { os.Remove(tmp.Name()) }

	if err := f.objects.DownloadFile(ctx, bucket, key, tmp.Name()); err != nil {
		cleanup()
		return "", noop, err
	}

	f.logger.Debug().Str("ref", ref).Str("path", tmp.Name()).Msg("Localized object")
	return tmp.Name(), cleanup, nil
}

func (f *Fetcher) getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.objects == nil {
		return nil, ErrNoObjectStore
	}
	return f.objects.GetObject(ctx, bucket, key)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", ref, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%s: %w", ref, ErrTooLarge)
	}
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	return os.ReadFile(path)
}

func splitObjectURL(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid object reference %q: %w", ref, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid object reference %q: want s3://bucket/key", ref)
	}
	return u.Host, key, nil
}

func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("invalid data URL: missing comma")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid data URL: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data URL: %w", err)
	}
	return []byte(text), nil
}
