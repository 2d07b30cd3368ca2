package infrastructure

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/embedding"
	"github.com/shopmind/backend/internal/infrastructure/eventbus"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/ml"
	"github.com/shopmind/backend/internal/infrastructure/storage"
	"github.com/shopmind/backend/internal/infrastructure/vector"
	"github.com/shopmind/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	vector.ProviderSet,
	embedding.ProviderSet,
	llm.ProviderSet,
	ml.ProviderSet,
	eventbus.ProviderSet,
	websocket.ProviderSet,
)

// StoreSet 离线命令（重建索引、训练）只需要的存储与模型依赖
var StoreSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	vector.ProviderSet,
	embedding.ProviderSet,
	ml.ProviderSet,
)
