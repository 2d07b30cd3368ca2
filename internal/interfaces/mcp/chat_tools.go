package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shopmind/backend/internal/application/orchestrator"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
)

// SubmitTurnInput 对话工具输入
type SubmitTurnInput struct {
	ChatID     string `json:"chat_id,omitempty" jsonschema:"Existing chat id, a new chat is created when empty"`
	UserID     int64  `json:"user_id" jsonschema:"Customer id, or shop id when sender_kind is shop (required)"`
	SenderKind string `json:"sender_kind,omitempty" jsonschema:"customer (default) or shop"`
	Text       string `json:"text" jsonschema:"Message text (required)"`
}

// SubmitTurnOutput 对话工具输出
type SubmitTurnOutput struct {
	ChatID      string         `json:"chat_id"`
	Content     string         `json:"content" jsonschema:"Assistant answer shown to the user"`
	SourceAgent string         `json:"source_agent" jsonschema:"Agent that produced the answer"`
	Kind        string         `json:"kind" jsonschema:"answer, not_found, clarify, confirmation or error"`
	Intent      string         `json:"intent"`
	Confidence  float64        `json:"confidence"`
	Entities    map[string]any `json:"entities,omitempty"`
}

// GetChatHistoryInput 会话历史工具输入
type GetChatHistoryInput struct {
	ChatID string `json:"chat_id" jsonschema:"Chat id (required)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Only the most recent messages, all when omitted"`
}

// GetChatHistoryOutput 会话历史工具输出
type GetChatHistoryOutput struct {
	Messages []HistoryMessage `json:"messages" jsonschema:"Messages in chronological order"`
	Count    int              `json:"count"`
}

// HistoryMessage 精简的会话消息
type HistoryMessage struct {
	SenderKind string `json:"sender_kind"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

func (s *MCPServer) submitTurnTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SubmitTurnInput,
) (*mcp.CallToolResult, SubmitTurnOutput, error) {
	sender := chat.SenderKind(input.SenderKind)
	if sender == "" {
		sender = chat.SenderCustomer
	}
	result, err := s.orchestrator.SubmitTurn(ctx, orchestrator.TurnInput{
		ChatID:     input.ChatID,
		UserID:     input.UserID,
		SenderKind: sender,
		Text:       input.Text,
	})
	if err != nil {
		s.logger.Warn("submit_turn failed", "chat_id", input.ChatID, "error", err)
		return nil, SubmitTurnOutput{}, fmt.Errorf("%s", apperr.UserMessage(err))
	}
	return nil, SubmitTurnOutput{
		ChatID:      result.ChatID,
		Content:     result.Content,
		SourceAgent: string(result.SourceAgent),
		Kind:        string(result.Kind),
		Intent:      string(result.Intent),
		Confidence:  result.Confidence,
		Entities:    result.Entities,
	}, nil
}

func (s *MCPServer) getChatHistoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetChatHistoryInput,
) (*mcp.CallToolResult, GetChatHistoryOutput, error) {
	output := GetChatHistoryOutput{Messages: []HistoryMessage{}}
	if input.ChatID == "" {
		return nil, output, fmt.Errorf("chat_id is required")
	}
	messages, err := s.conversations.History(ctx, input.ChatID, input.Limit)
	if err != nil {
		return nil, output, fmt.Errorf("%s", apperr.UserMessage(err))
	}
	for _, m := range messages {
		output.Messages = append(output.Messages, HistoryMessage{
			SenderKind: string(m.SenderKind),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		})
	}
	output.Count = len(output.Messages)
	return nil, output, nil
}
