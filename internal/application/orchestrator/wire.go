package orchestrator

import (
	"github.com/google/wire"

	intentapp "github.com/shopmind/backend/internal/application/intent"
)

// ProviderSet 编排器 ProviderSet
var ProviderSet = wire.NewSet(
	NewEntityExtractor,
	NewOrchestrator,
	wire.Bind(new(Predictor), new(*intentapp.Classifier)),
)
