package kvstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/config"
)

// NewStore creates a new store based on configuration
func NewStore(ctx context.Context, logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("Initializing key/value store", zap.String("type", cfg.Type))
	switch cnst.StoreType(cfg.Type) {
	case cnst.StoreTypeMemory, "":
		return NewMemoryStore(logger), nil
	case cnst.StoreTypeRedis:
		return NewRedisStore(ctx, logger, cfg.Redis)
	case cnst.StoreTypeDB:
		return NewDBStore(logger, cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStoreType, cfg.Type)
	}
}
