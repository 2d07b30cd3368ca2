package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/orchestrator"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/websocket"
	"github.com/shopmind/backend/internal/interfaces/http/response"
)

// ChatHandler 会话与对话轮次处理器
type ChatHandler struct {
	conversations *conversation.Service
	orchestrator  *orchestrator.Orchestrator
	upgrader      *websocket.Upgrader
	logger        *slog.Logger
}

// NewChatHandler 创建会话处理器
func NewChatHandler(
	conversations *conversation.Service,
	orch *orchestrator.Orchestrator,
	upgrader *websocket.Upgrader,
) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		orchestrator:  orch,
		upgrader:      upgrader,
		logger:        log.NewModuleLogger("http", "chat"),
	}
}

// SubmitTurnRequest 提交消息请求
type SubmitTurnRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	// SenderKind customer 或 shop，默认 customer
	SenderKind string `json:"sender_kind,omitempty"`
	Text       string `json:"text" binding:"required"`
}

// MarkReadRequest 标记已读请求
type MarkReadRequest struct {
	Reader string `json:"reader" binding:"required"`
}

// Create 创建会话
// @Summary 创建会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body conversation.CreateInput true "顾客或店铺 ID，至少一个"
// @Success 200 {object} response.Response{data=chat.Chat}
// @Failure 400 {object} response.ErrorResponse
// @Router /chats [post]
func (h *ChatHandler) Create(c *gin.Context) {
	var in conversation.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, apperr.MsgInvalid)
		return
	}
	created, err := h.conversations.Create(c.Request.Context(), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, created)
}

// List 按顾客或店铺列出会话
// @Summary 会话列表
// @Tags 会话
// @Produce json
// @Param customer_id query int false "顾客 ID"
// @Param shop_id query int false "店铺 ID"
// @Param status query string false "active 或 closed"
// @Param limit query int false "最多返回条数"
// @Success 200 {object} response.Response{data=[]chat.Summary}
// @Failure 400 {object} response.ErrorResponse
// @Router /chats [get]
func (h *ChatHandler) List(c *gin.Context) {
	filter := chat.ListFilter{
		CustomerID: queryInt64(c, "customer_id"),
		ShopID:     queryInt64(c, "shop_id"),
		Status:     chat.Status(c.Query("status")),
		Limit:      queryInt(c, "limit", 0),
	}
	summaries, err := h.conversations.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summaries)
}

// SubmitTurn 提交一轮消息并返回助手回复
// @Summary 发送消息
// @Tags 会话
// @Accept json
// @Produce json
// @Param id path string true "会话 ID，不存在时自动创建"
// @Param body body SubmitTurnRequest true "消息"
// @Success 200 {object} response.Response{data=orchestrator.TurnResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /chats/{id}/messages [post]
func (h *ChatHandler) SubmitTurn(c *gin.Context) {
	var req SubmitTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, apperr.MsgInvalid)
		return
	}
	result, err := h.orchestrator.SubmitTurn(c.Request.Context(), turnInput(c.Param("id"), req))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// History 会话消息，按时间升序
// @Summary 会话历史
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Param limit query int false "只取最近的 limit 条"
// @Success 200 {object} response.Response{data=[]chat.Message}
// @Failure 404 {object} response.ErrorResponse
// @Router /chats/{id}/messages [get]
func (h *ChatHandler) History(c *gin.Context) {
	messages, err := h.conversations.History(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, messages)
}

// Close 关闭会话
// @Summary 关闭会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chats/{id}/close [post]
func (h *ChatHandler) Close(c *gin.Context) {
	if err := h.conversations.Close(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"chat_id": c.Param("id"), "status": chat.StatusClosed})
}

// MarkRead 标记对方消息已读
// @Summary 标记已读
// @Tags 会话
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param body body MarkReadRequest true "读者身份 customer 或 shop"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /chats/{id}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, apperr.MsgInvalid)
		return
	}
	n, err := h.conversations.MarkRead(c.Request.Context(), c.Param("id"), chat.SenderKind(req.Reader))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

// Delete 删除会话及消息
// @Summary 删除会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chats/{id} [delete]
func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"chat_id": c.Param("id")})
}

// Subscribe 订阅会话的实时消息，客户端也可以通过该连接发送消息
// GET /api/v1/chats/:id/ws?user_id=42&sender_kind=customer
func (h *ChatHandler) Subscribe(c *gin.Context) {
	chatID := c.Param("id")
	defaults := SubmitTurnRequest{
		SenderKind: c.DefaultQuery("sender_kind", string(chat.SenderCustomer)),
	}
	if uid := queryInt64(c, "user_id"); uid != nil {
		defaults.UserID = *uid
	}

	err := h.upgrader.Serve(c.Writer, c.Request, chatID, func(ctx context.Context, client *websocket.Client, payload []byte) *websocket.Frame {
		req := defaults
		if err := json.Unmarshal(payload, &req); err != nil {
			return &websocket.Frame{Type: websocket.FrameError, ChatID: chatID, Data: apperr.MsgInvalid}
		}
		result, err := h.orchestrator.SubmitTurn(ctx, turnInput(client.ChatID(), req))
		if err != nil {
			return &websocket.Frame{Type: websocket.FrameError, ChatID: chatID, Data: apperr.UserMessage(err)}
		}
		return &websocket.Frame{Type: websocket.FrameTurnResult, ChatID: chatID, Data: result}
	})
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "chat_id", chatID, "error", err)
	}
}

func turnInput(chatID string, req SubmitTurnRequest) orchestrator.TurnInput {
	sender := chat.SenderKind(req.SenderKind)
	if sender == "" {
		sender = chat.SenderCustomer
	}
	return orchestrator.TurnInput{
		ChatID:     chatID,
		UserID:     req.UserID,
		SenderKind: sender,
		Text:       req.Text,
	}
}

func queryInt64(c *gin.Context, key string) *int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
