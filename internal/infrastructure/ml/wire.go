package ml

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
)

// ProviderSet 模型产物 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideArtifactStore,
)

// ProvideArtifactStore 使用配置中的模型目录
func ProvideArtifactStore(cfg *config.MLConfig) *ArtifactStore {
	return NewArtifactStore(cfg.ModelDir)
}
