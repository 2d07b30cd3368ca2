//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/application"
	appIntent "github.com/shopmind/backend/internal/application/intent"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/infrastructure"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/interfaces"
)

// InitializeAll 初始化所有服务（HTTP + MCP + WebSocket）
func InitializeAll(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		NewApp,                     // 组合所有服务的应用结构
	)
	return nil, nil, nil
}

// InitializeIndexer 重建索引命令使用
func InitializeIndexer(cfg *config.Config) (*retrieval.Indexer, func(), error) {
	wire.Build(
		infrastructure.StoreSet,
		retrieval.NewIndexer,
		wire.Struct(new(retrieval.Repositories), "*"),
	)
	return nil, nil, nil
}

// InitializeClassifier 训练意图模型命令使用
func InitializeClassifier(cfg *config.Config) *appIntent.Classifier {
	wire.Build(
		config.NewMLConfig,
		ml.ProvideArtifactStore,
		appIntent.NewClassifier,
	)
	return nil
}
