package storage

import (
	"context"

	"github.com/marketsync/backend/internal/domain/integration"
	infraconfig "github.com/marketsync/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NoopPayloadArchive discards payloads. It is used when archiving is disabled.
type NoopPayloadArchive struct{}

// Ensure NoopPayloadArchive implements PayloadArchive
var _ integration.PayloadArchive = NoopPayloadArchive{}

// Put does nothing
func (NoopPayloadArchive) Put(context.Context, integration.Marketplace, string, string, []byte) error {
	return nil
}

// NewPayloadArchive returns the S3 archive when storage is enabled and the
// no-op archive otherwise.
func NewPayloadArchive(cfg *infraconfig.StorageConfig, logger *zap.Logger) (integration.PayloadArchive, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Raw payload archive disabled")
		return NoopPayloadArchive{}, nil
	}

	archive, err := NewS3PayloadArchive(cfg, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Info("Raw payload archive enabled", zap.String("bucket", cfg.Bucket))
	return archive, nil
}
