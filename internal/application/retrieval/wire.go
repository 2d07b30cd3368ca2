package retrieval

import (
	"github.com/google/wire"
)

// ProviderSet 检索服务 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
	NewIndexer,
	wire.Struct(new(Repositories), "*"),
)
