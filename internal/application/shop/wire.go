package shop

import "github.com/google/wire"

// ProviderSet 店铺管理 ProviderSet
var ProviderSet = wire.NewSet(
	NewProductManager,
	NewInventoryAgent,
	NewMarketingAgent,
	NewAnalyticsAgent,
	NewCustomerServiceAgent,
	NewPolicyAgent,
	NewDispatcher,
)
