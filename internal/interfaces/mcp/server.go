package mcp

import (
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/orchestrator"
	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server        *mcp.Server
	handler       http.Handler
	orchestrator  *orchestrator.Orchestrator
	conversations *conversation.Service
	retrieval     *retrieval.Service
	logger        *slog.Logger
}

// NewServer 创建 MCP 服务器
func NewServer(
	orch *orchestrator.Orchestrator,
	conversations *conversation.Service,
	svc *retrieval.Service,
) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shopmind",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	s := &MCPServer{
		server:        server,
		orchestrator:  orch,
		conversations: conversations,
		retrieval:     svc,
		logger:        log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_products",
		Description: `Semantic search over the product catalog.
Parameters:
- query (string, required): what the customer is looking for, Vietnamese or English
- k (int, optional): number of results, defaults to 5, max 20
- shop_id (int, optional): only products of this shop

Returns: products with id, name, price, brand, category and similarity score, best match first.`,
	}, s.searchProductsTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "submit_turn",
		Description: `Send one message to the shopping assistant and get its answer.
Parameters:
- chat_id (string, optional): existing chat id; a new chat is created when empty or unknown
- user_id (int, required): customer id, or shop id when sender_kind is shop
- sender_kind (string, optional): "customer" (default) or "shop"
- text (string, required): the message

Returns: answer content, the agent that answered, detected intent, entities and confidence.`,
	}, s.submitTurnTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_chat_history",
		Description: `Read the transcript of a chat in chronological order.
Parameters:
- chat_id (string, required)
- limit (int, optional): only the most recent messages

Returns: messages with sender kind, content and creation time.`,
	}, s.getChatHistoryTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "context_for_prompt",
		Description: `Build grounded context for a question from products, FAQs and categories.
Parameters:
- query (string, required)
- per_collection_k (int, optional): results per collection, defaults to 3

Returns: the assembled context text plus the matched items per collection. Empty query returns empty context.`,
	}, s.contextForPromptTool)

	// 创建 SSE Handler
	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)
	return s
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
