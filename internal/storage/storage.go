package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/config"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
)

const defaultPresignExpiry = time.Hour

// Storage builds playable locations for section media held in object storage
type Storage struct {
	client        *minio.Client
	bucketName    string
	publicBaseURL string
	presignExpiry time.Duration
	logger        *logging.Logger
}

// NewClient creates a storage client without contacting the server
func NewClient(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}

	return &Storage{
		client:        client,
		bucketName:    cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
		logger:        logger,
	}, nil
}

// New creates a storage client and ensures the bucket exists
func New(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	s, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return s, nil
}

// Object layout, keyed by section id:
//
//	sections/{id}/source/original.mp4
//	sections/{id}/hls/master.m3u8

// SourceKey returns the object key of a section's source video
func SourceKey(sectionID string) string {
	return path.Join("sections", sectionID, "source", "original.mp4")
}

// ManifestKey returns the object key of a section's master manifest
func ManifestKey(sectionID string) string {
	return path.Join("sections", sectionID, "hls", "master.m3u8")
}

// URL returns a playable URL for an object: under the public base URL when
// one is configured, presigned otherwise.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}

	start := time.Now()
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignExpiry, nil)
	s.logger.LogStorageOperation("presign", s.bucketName, key, time.Since(start), err)
	if err != nil {
		metrics.RecordStorageOperation("presign", "error")
		return "", fmt.Errorf("failed to generate URL: %w", err)
	}
	metrics.RecordStorageOperation("presign", "success")

	return u.String(), nil
}

// ManifestURL returns the playable location of a section's master manifest
func (s *Storage) ManifestURL(ctx context.Context, sectionID string) (string, error) {
	return s.URL(ctx, ManifestKey(sectionID))
}

// SourceURL returns a location the dubbing service can fetch the source video from
func (s *Storage) SourceURL(ctx context.Context, sectionID string) (string, error) {
	return s.URL(ctx, SourceKey(sectionID))
}

// Ping checks that the bucket is reachable
func (s *Storage) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucketName); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	return nil
}
