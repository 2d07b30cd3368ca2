package conversation

import "github.com/google/wire"

// ProviderSet 会话服务 ProviderSet
var ProviderSet = wire.NewSet(NewService)
