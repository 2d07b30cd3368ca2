package eventbus

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/domain/events"
)

// ProviderSet 事件总线 ProviderSet
var ProviderSet = wire.NewSet(
	New,
	wire.Bind(new(events.Publisher), new(events.EventBus)),
)
