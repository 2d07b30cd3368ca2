package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopmind/backend/internal/domain/chat"
)

func TestParseName(t *testing.T) {
	for _, n := range Names {
		got, ok := ParseName(string(n))
		assert.True(t, ok)
		assert.Equal(t, n, got)
	}

	_, ok := ParseName("review_agent")
	assert.False(t, ok)
}

func TestRequest_Context(t *testing.T) {
	req := &Request{
		SenderKind: chat.SenderShop,
		Context:    map[string]any{"last_viewed_product_id": float64(55)},
	}

	assert.True(t, req.IsShop())
	id, ok := req.ContextInt64("last_viewed_product_id")
	assert.True(t, ok)
	assert.Equal(t, int64(55), id)
}
