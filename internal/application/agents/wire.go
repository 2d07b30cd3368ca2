package agents

import (
	"github.com/google/wire"
)

// ProviderSet 顾客代理 ProviderSet
var ProviderSet = wire.NewSet(
	NewProductResolver,
	NewRecommendScorer,
	NewSearchAgent,
	NewProductInfoAgent,
	NewRecommendationAgent,
	NewComparisonAgent,
	NewPolicyAgent,
	NewUserProfileAgent,
	NewGeneralAgent,
	NewRegistry,
)
