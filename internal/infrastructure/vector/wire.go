package vector

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// ProviderSet 向量索引 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideIndex,
)

// ProvideIndex 按配置选择向量索引后端
func ProvideIndex(cfg *config.VectorConfig) (Index, func(), error) {
	logger := log.NewModuleLogger("vector", "provider")

	if cfg.Backend == "memory" {
		logger.Info("Using in-memory vector index")
		return NewMemoryIndex(), func() {}, nil
	}

	idx, err := NewQdrantIndex(cfg.Host, cfg.Port, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to qdrant", "host", cfg.Host, "port", cfg.Port)
	cleanup := func() {
		if err := idx.Close(); err != nil {
			logger.Warn("Failed to close qdrant client", "error", err)
		}
	}
	return idx, cleanup, nil
}
