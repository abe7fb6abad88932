package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service stores answer images and issues time-limited signed URLs for them.
type Service struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// New constructs an object store service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store credentials must be provided")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client: %w", err)
	}

	return &Service{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Upload writes the object and returns nothing; callers obtain URLs via PresignURL.
func (s *Service) Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q: %w", objectPath, err)
	}

	s.logger.Info().Str("object_path", objectPath).Msg("image uploaded to object store")

	return nil
}

// PresignURL issues a time-limited signed GET URL for a stored object.
func (s *Service) PresignURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", objectPath, err)
	}

	return signed.String(), nil
}

// Resign recovers the stored object path from a previously issued URL and
// signs it again. Used by the review surface when an old link has expired;
// accepts either a full signed URL or a bare object path.
func (s *Service) Resign(ctx context.Context, imageRef string, expiry time.Duration) (string, error) {
	objectPath, err := ExtractObjectPath(imageRef, s.bucket)
	if err != nil {
		return "", err
	}

	return s.PresignURL(ctx, objectPath, expiry)
}

// ObjectPath builds the storage path for an uploaded image. The unix
// timestamp keeps listings roughly chronological; the random suffix keeps
// repeated uploads of same-named files distinct even within one second, so
// one submission can never overwrite another's image.
func ObjectPath(assignmentID, fileName string, now time.Time) string {
	base := filepath.Base(fileName)
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return path.Join(assignmentID, fmt.Sprintf("%d_%s_%s", now.Unix(), suffix, base))
}

// ExtractObjectPath recovers the stored object path fragment from a signed URL.
// It is a pure function of the URL path: signing parameters and the bucket
// prefix are stripped so re-signing never breaks stored references.
func ExtractObjectPath(imageRef, bucket string) (string, error) {
	if imageRef == "" {
		return "", fmt.Errorf("empty image reference")
	}

	if !strings.Contains(imageRef, "://") {
		return strings.TrimPrefix(imageRef, "/"), nil
	}

	parsed, err := url.Parse(imageRef)
	if err != nil {
		return "", fmt.Errorf("parse image reference: %w", err)
	}

	cleaned := strings.TrimPrefix(parsed.Path, "/")
	if bucket != "" {
		cleaned = strings.TrimPrefix(cleaned, bucket+"/")
	}

	if cleaned == "" {
		return "", fmt.Errorf("image reference %q has no object path", imageRef)
	}

	return cleaned, nil
}
