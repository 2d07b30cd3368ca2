package events

// Handler 事件消费方，错误只记日志不重试
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc 把普通函数适配为 Handler
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// Publisher 会话服务与编排器只依赖发布能力
type Publisher interface {
	// Publish 不阻塞调用方，总线关闭后的事件被丢弃
	Publish(event Event)
}

// Subscriber 索引器与 WebSocket Hub 只依赖订阅能力
type Subscriber interface {
	// Subscribe 返回的函数可重复调用
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())
}

// EventBus 进程内总线，每个处理器在独立 goroutine 中执行，不保证顺序
type EventBus interface {
	Publisher
	Subscriber

	// Close 之后 Publish 变为空操作，已入队事件会处理完
	Close()
}
