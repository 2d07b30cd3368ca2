package intent

import (
	"github.com/google/wire"
)

// ProviderSet 意图分类 ProviderSet
var ProviderSet = wire.NewSet(
	NewClassifier,
)
