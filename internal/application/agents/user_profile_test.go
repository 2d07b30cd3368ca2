package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/testutil"
)

func TestUserProfileAgent(t *testing.T) {
	ctx := context.Background()

	t.Run("get profile", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		resp, err := a.Handle(ctx, customerRequest("xem thông tin tài khoản của tôi", nil))
		require.NoError(t, err)
		assert.Equal(t, agent.KindAnswer, resp.Kind)
		assert.Contains(t, resp.Content, "a@example.com")
		assert.Nil(t, resp.ContextUpdates)
	})

	t.Run("get preferences", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		resp, err := a.Handle(ctx, customerRequest("sở thích của tôi là gì", nil))
		require.NoError(t, err)
		assert.Equal(t, OpGetPreferences, resp.Data["operation"])
		assert.Contains(t, resp.Content, "Samsung")
	})

	t.Run("update requires confirmation", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		resp, err := a.Handle(ctx, customerRequest("cập nhật email thành new@example.com", nil))
		require.NoError(t, err)
		assert.Equal(t, agent.KindConfirmation, resp.Kind)
		assert.Contains(t, resp.Content, "new@example.com")
		pending := resp.ContextUpdates[chat.ContextPendingProfileUpdate]
		require.NotNil(t, pending)

		customer, err := env.fixture.Customers.Get(ctx, testutil.CustomerID)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", customer.Email, "nothing is written before confirmation")

		confirm := customerRequest("Đồng ý", nil)
		confirm.Context = map[string]any{chat.ContextPendingProfileUpdate: pending}
		resp, err = a.Handle(ctx, confirm)
		require.NoError(t, err)
		assert.Equal(t, agent.KindAnswer, resp.Kind)
		assert.Contains(t, resp.ContextUpdates, chat.ContextPendingProfileUpdate)
		assert.Nil(t, resp.ContextUpdates[chat.ContextPendingProfileUpdate])

		customer, err = env.fixture.Customers.Get(ctx, testutil.CustomerID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", customer.Email)
		assert.Equal(t, "0901234567", customer.Phone)
	})

	t.Run("refusal discards pending update", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		req := customerRequest("Không, hủy đi", nil)
		req.Context = map[string]any{chat.ContextPendingProfileUpdate: map[string]any{"phone": "0911111111"}}
		resp, err := a.Handle(ctx, req)
		require.NoError(t, err)
		assert.Contains(t, resp.Content, "Đã hủy")
		assert.Nil(t, resp.ContextUpdates[chat.ContextPendingProfileUpdate])

		customer, err := env.fixture.Customers.Get(ctx, testutil.CustomerID)
		require.NoError(t, err)
		assert.Equal(t, "0901234567", customer.Phone)
	})

	t.Run("update preferences from llm", func(t *testing.T) {
		env := setupAgents(t)
		env.completer.Reply("profile_parse", `{"operation":"update_preferences","preferences":{"categories":["Laptop"],"brands":["Dell"]}}`)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		resp, err := a.Handle(ctx, customerRequest("tôi thích laptop Dell", nil))
		require.NoError(t, err)
		require.Equal(t, agent.KindConfirmation, resp.Kind)

		pending, ok := PendingProfileUpdate(resp.ContextUpdates)
		require.True(t, ok)
		require.NotNil(t, pending.Preferences)
		assert.Equal(t, []string{testutil.LaptopCatID}, pending.Preferences.Categories)
		assert.Equal(t, []string{"Dell"}, pending.Preferences.Brands)
		assert.Equal(t, int64(20_000_000), pending.Preferences.PriceMax, "unchanged preferences are kept")
	})

	t.Run("unrelated reply keeps pending and asks again", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		req := customerRequest("đổi số điện thoại thành 0922222222", intent.Entities{})
		req.Context = map[string]any{chat.ContextPendingProfileUpdate: map[string]any{"email": "x@example.com"}}
		resp, err := a.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, agent.KindConfirmation, resp.Kind)
		assert.Contains(t, resp.Content, "0922222222")
	})

	t.Run("shop sender is rejected", func(t *testing.T) {
		env := setupAgents(t)
		a := NewUserProfileAgent(env.fixture.Customers, env.fixture.Categories, env.completer)

		req := customerRequest("xem thông tin tài khoản", nil)
		req.SenderKind = chat.SenderShop
		req.UserID = testutil.ShopID
		resp, err := a.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, agent.KindClarify, resp.Kind)
	})
}

func TestPendingProfileUpdate(t *testing.T) {
	_, ok := PendingProfileUpdate(nil)
	assert.False(t, ok)

	_, ok = PendingProfileUpdate(map[string]any{chat.ContextPendingProfileUpdate: map[string]any{}})
	assert.False(t, ok)

	update, ok := PendingProfileUpdate(map[string]any{
		chat.ContextPendingProfileUpdate: map[string]any{"address": "Hà Nội"},
	})
	require.True(t, ok)
	require.NotNil(t, update.Address)
	assert.Equal(t, "Hà Nội", *update.Address)
}
