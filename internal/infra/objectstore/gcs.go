package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
)

const defaultPrefix = "faces"

// GCSImageStore removes enrolment images stored under {prefix}/{lockId}/ in a bucket.
type GCSImageStore struct {
	objects *storage.ObjectsService
	bucket  string
	prefix  string
	logger  *zap.Logger
}

// NewGCSImageStore builds a store from cfg. extra options are applied after
// the ones derived from cfg.
func NewGCSImageStore(ctx context.Context, cfg config.ObjectStoreSettings, logger *zap.Logger, extra ...option.ClientOption) (*GCSImageStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := make([]option.ClientOption, 0, len(extra)+2)
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}

	logger.Info("object store configured", zap.String("bucket", cfg.Bucket), zap.String("prefix", prefix))
	return &GCSImageStore{objects: svc.Objects, bucket: cfg.Bucket, prefix: prefix, logger: logger}, nil
}

// DeleteLockImages deletes every object under the lock's folder and returns
// how many were removed. Objects that vanish concurrently are not errors.
func (s *GCSImageStore) DeleteLockImages(ctx context.Context, lockID string) (int, error) {
	if lockID == "" || strings.ContainsAny(lockID, "/\\") {
		return 0, fmt.Errorf("invalid lock id %q", lockID)
	}
	folder := s.prefix + "/" + lockID + "/"

	var names []string
	err := s.objects.List(s.bucket).Prefix(folder).Fields("nextPageToken", "items/name").
		Pages(ctx, func(page *storage.Objects) error {
			for _, obj := range page.Items {
				names = append(names, obj.Name)
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", folder, err)
	}

	deleted := 0
	for _, name := range names {
		if err := s.objects.Delete(s.bucket, name).Context(ctx).Do(); err != nil {
			if isNotFound(err) {
				continue
			}
			return deleted, fmt.Errorf("delete %s: %w", name, err)
		}
		deleted++
	}

	s.logger.Info("deleted lock images", zap.String("lock_id", lockID), zap.Int("count", deleted))
	return deleted, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

var _ port.FaceImageStore = (*GCSImageStore)(nil)
