package application

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/intent"
	"github.com/shopmind/backend/internal/application/orchestrator"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/application/shop"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	conversation.ProviderSet,
	retrieval.ProviderSet,
	intent.ProviderSet,
	agents.ProviderSet,
	shop.ProviderSet,
	orchestrator.ProviderSet,
)
