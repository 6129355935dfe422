// Package objectstore wraps the S3-compatible bucket holding source videos
// and extracted clips: existence checks, clip listing with transparent
// pagination, and presigned upload/download URLs.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds bucket connection settings.
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

// Store is the object-storage client used by both services.
type Store struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
	logger     *slog.Logger
}

// New creates a Store for the configured bucket.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		presignTTL: presignTTL,
		logger:     logger,
	}, nil
}

// Exists reports whether key is present in the bucket. A missing object is
// not an error; anything else is.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return true, nil
}

// ListClips lists the bucket under the prefix derived from sourceKey and
// returns the keys that look like clip objects. The client paginates
// internally, so result size is unbounded by page limits.
func (s *Store) ListClips(ctx context.Context, sourceKey string) ([]string, error) {
	prefix := ClipPrefix(sourceKey)

	var keys []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, object.Err)
		}
		if IsClipKey(object.Key) {
			keys = append(keys, object.Key)
		}
	}

	s.logger.Debug("Listed clip objects",
		slog.String("prefix", prefix),
		slog.Int("count", len(keys)),
	)

	return keys, nil
}

// PresignPut returns a presigned PUT URL for uploading key.
func (s *Store) PresignPut(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignGet returns a presigned GET URL for downloading key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return u.String(), nil
}

// ClipPrefix derives the listing prefix for a source key. Clips are written
// next to the source object, so a plain key lists its parent directory; a
// key that is already a prefix (trailing slash) lists itself.
func ClipPrefix(key string) string {
	normalized := strings.TrimLeft(key, "/")

	if strings.HasSuffix(key, "/") {
		if !strings.HasSuffix(normalized, "/") {
			normalized += "/"
		}
		return normalized
	}

	parts := []string{}
	for _, p := range strings.Split(normalized, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "/") + "/"
}

// IsClipKey reports whether an object key names an extracted clip.
func IsClipKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "clip")
}
