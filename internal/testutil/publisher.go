package testutil

import (
	"sync"

	"github.com/shopmind/backend/internal/domain/events"
)

// Publisher 记录已发布事件的同步发布方
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
}

// NewPublisher 创建记录型发布方
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish 实现 events.Publisher
func (p *Publisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events 返回指定类型的事件，eventType 为空返回全部
func (p *Publisher) Events(eventType events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []events.Event
	for _, e := range p.events {
		if eventType == "" || e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

var _ events.Publisher = (*Publisher)(nil)
