package eventbus

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/events"
)

func newMessageEvent() *events.ChatMessageEvent {
	return &events.ChatMessageEvent{
		Message:   &chat.Message{ID: "m-1", ChatID: "c-1", Content: "xin chào"},
		EventTime: time.Now(),
	}
}

func TestBus_Subscribe(t *testing.T) {
	b := New()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
			count.Add(1)
			return nil
		}))
	}

	b.Publish(newMessageEvent())
	// Close 等待所有分发完成
	b.Close()

	assert.Equal(t, int32(3), count.Load())
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()

	var count atomic.Int32
	unsub := b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
		count.Add(1)
		return nil
	}))
	unsub()
	unsub() // 重复取消不 panic

	b.Publish(newMessageEvent())
	b.Close()

	assert.Equal(t, int32(0), count.Load())
}

func TestBus_SubscribeMultiple(t *testing.T) {
	b := New()

	var count atomic.Int32
	b.SubscribeMultiple(
		[]events.EventType{events.ChatMessageCreated, events.ChatClosed},
		events.HandlerFunc(func(event events.Event) error {
			count.Add(1)
			return nil
		}),
	)

	b.Publish(newMessageEvent())
	b.Publish(&events.ChatClosedEvent{ChatID: "c-1", EventTime: time.Now()})
	b.Close()

	assert.Equal(t, int32(2), count.Load())
}

func TestBus_HandlerFailureIsolated(t *testing.T) {
	b := New()

	var ok atomic.Bool
	b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
		panic("boom")
	}))
	b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
		return errors.New("failed")
	}))
	b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
		ok.Store(true)
		return nil
	}))

	b.Publish(newMessageEvent())
	b.Close()

	assert.True(t, ok.Load())
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New()
	b.Close()

	var called atomic.Bool
	b.Subscribe(events.ChatMessageCreated, events.HandlerFunc(func(event events.Event) error {
		called.Store(true)
		return nil
	}))
	b.Publish(newMessageEvent())

	assert.False(t, called.Load())
}
