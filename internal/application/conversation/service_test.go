package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/testutil"
)

func setupService(t *testing.T) (*Service, *testutil.Fixture, *testutil.Publisher) {
	t.Helper()
	f := testutil.NewFixture(t)
	f.Seed(t)
	pub := testutil.NewPublisher()
	return NewService(f.Chats, pub), f, pub
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	t.Run("requires a participant", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

		zero := int64(0)
		_, err = svc.Create(ctx, CreateInput{CustomerID: &zero})
		assert.True(t, apperr.IsValidationError(err))
	})

	t.Run("generates id", func(t *testing.T) {
		c, err := svc.Create(ctx, CreateInput{CustomerID: testutil.Int64(testutil.CustomerID)})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, chat.StatusActive, c.Status)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{ID: "dup", ShopID: testutil.Int64(testutil.ShopID)})
		require.NoError(t, err)
		_, err = svc.Create(ctx, CreateInput{ID: "dup", ShopID: testutil.Int64(testutil.ShopID)})
		assert.True(t, apperr.IsValidationError(err))
	})
}

func TestService_Ensure(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	c, created, err := svc.Ensure(ctx, "new-chat", chat.SenderShop, testutil.ShopID)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, c.ShopID)
	assert.Equal(t, testutil.ShopID, *c.ShopID)
	assert.Nil(t, c.CustomerID)

	again, created, err := svc.Ensure(ctx, "new-chat", chat.SenderCustomer, testutil.CustomerID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)

	_, _, err = svc.Ensure(ctx, "anonymous", chat.SenderCustomer, 0)
	assert.True(t, apperr.IsValidationError(err))
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, f, pub := setupService(t)

	c, err := svc.Create(ctx, CreateInput{
		ID:         "c1",
		CustomerID: testutil.Int64(testutil.CustomerID),
		ShopID:     testutil.Int64(testutil.ShopID),
	})
	require.NoError(t, err)

	for _, m := range []*chat.Message{
		{ChatID: c.ID, SenderKind: chat.SenderCustomer, SenderID: "42", Content: "Xin chào"},
		{ChatID: c.ID, SenderKind: chat.SenderAgentResponse, SenderID: "general", Content: "Chào bạn"},
		{ChatID: c.ID, SenderKind: chat.SenderCustomer, SenderID: "42", Content: "Còn hàng không?"},
	} {
		require.NoError(t, svc.Append(ctx, m))
	}
	assert.Len(t, pub.Events(events.ChatMessageCreated), 3)

	history, err := svc.History(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Xin chào", history[0].Content)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
	}

	recent, err := svc.History(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Chào bạn", recent[0].Content)

	list, err := svc.List(ctx, chat.ListFilter{ShopID: testutil.Int64(testutil.ShopID)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)

	n, err := svc.MarkRead(ctx, c.ID, chat.SenderShop)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "customer and assistant messages")

	require.NoError(t, svc.Close(ctx, c.ID))
	require.NoError(t, svc.Close(ctx, c.ID), "closing twice is fine")
	assert.Len(t, pub.Events(events.ChatClosed), 1)

	history, err = svc.History(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3, "closing keeps the transcript")

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.History(ctx, c.ID, 0)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	deleted := pub.Events(events.EntityDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, events.EntityChat, deleted[0].(*events.EntityEvent).Kind)

	stored, err := f.Chats.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	_, err := svc.List(ctx, chat.ListFilter{})
	assert.True(t, apperr.IsValidationError(err))

	_, err = svc.MarkRead(ctx, "missing", chat.SenderAgent)
	assert.True(t, apperr.IsValidationError(err))

	_, err = svc.MarkRead(ctx, "missing", chat.SenderShop)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = svc.Append(ctx, &chat.Message{ChatID: "missing", SenderKind: chat.SenderCustomer, Content: "x"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
