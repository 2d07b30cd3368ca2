// Package orchestrator 单轮对话编排：持久化、意图识别、路由、代理调用与兜底
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/application/conversation"
	"github.com/shopmind/backend/internal/application/shop"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// Predictor 廉价意图先验
type Predictor interface {
	Predict(ctx context.Context, text string) *intent.Prediction
}

// TurnInput 一轮输入
type TurnInput struct {
	// ChatID 为空或不存在时创建新会话
	ChatID     string          `json:"chat_id"`
	UserID     int64           `json:"user_id"`
	SenderKind chat.SenderKind `json:"sender_kind"`
	Text       string          `json:"text"`
}

// TurnResult 一轮输出
type TurnResult struct {
	ChatID            string          `json:"chat_id"`
	ChatCreated       bool            `json:"chat_created"`
	UserMessageID     string          `json:"user_message_id"`
	ResponseMessageID string          `json:"response_message_id,omitempty"`
	Content           string          `json:"content"`
	SourceAgent       agent.Name      `json:"source_agent"`
	Kind              agent.Kind      `json:"kind"`
	Intent            intent.Label    `json:"intent"`
	Entities          intent.Entities `json:"entities"`
	Confidence        float64         `json:"confidence"`
	TargetAgent       string          `json:"target_agent"`
	RoutingSource     string          `json:"routing_source"`
	Data              map[string]any  `json:"data,omitempty"`
	Sources           []agent.Source  `json:"sources,omitempty"`
}

// Orchestrator 对话编排器，会话上下文的唯一写入方
type Orchestrator struct {
	conversations *conversation.Service
	registry      *agents.Registry
	shop          *shop.Dispatcher
	predictor     Predictor
	completer     llm.Completer
	extractor     *EntityExtractor
	cfg           *config.ChatConfig
	locks         *chatLocks
	logger        *slog.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	conversations *conversation.Service,
	registry *agents.Registry,
	shopDispatcher *shop.Dispatcher,
	predictor Predictor,
	completer llm.Completer,
	extractor *EntityExtractor,
	cfg *config.ChatConfig,
) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		registry:      registry,
		shop:          shopDispatcher,
		predictor:     predictor,
		completer:     completer,
		extractor:     extractor,
		cfg:           cfg,
		locks:         newChatLocks(),
		logger:        log.NewModuleLogger("orchestrator", "turn"),
	}
}

// SubmitTurn 处理一轮消息
// 同一会话的轮次串行执行；用户消息先于代理调用落库，助手消息在代理返回后落库
func (o *Orchestrator) SubmitTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if err := validateTurn(&in); err != nil {
		return nil, err
	}
	if in.ChatID == "" {
		in.ChatID = uuid.NewString()
	}
	if o.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}
	ctx = log.WithChatID(ctx, in.ChatID)
	ctx = log.WithUserID(ctx, strconv.FormatInt(in.UserID, 10))
	logger := log.FromContext(ctx, o.logger)

	unlock, err := o.locks.acquire(ctx, in.ChatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("failed to acquire chat lock: %w", err))
	}
	defer unlock()

	start := time.Now()
	c, created, err := o.conversations.Ensure(ctx, in.ChatID, in.SenderKind, in.UserID)
	if err != nil {
		return nil, err
	}
	if c.IsClosed() {
		return nil, apperr.Wrap(apperr.ErrChatClosed, fmt.Errorf("chat %s is closed", c.ID))
	}

	userMsg := &chat.Message{
		ChatID:     c.ID,
		SenderKind: in.SenderKind,
		SenderID:   strconv.FormatInt(in.UserID, 10),
		Content:    in.Text,
	}
	if err := o.conversations.Append(ctx, userMsg); err != nil {
		return nil, err
	}

	decision := o.route(ctx, c, in)
	entities := decision.Entities.Merge(o.extractor.Extract(ctx, in.Text)).Normalize()
	decision.Entities = entities

	req := &agent.Request{
		ChatID:     c.ID,
		Message:    in.Text,
		Intent:     decision.Intent,
		Entities:   entities,
		SenderKind: in.SenderKind,
		UserID:     in.UserID,
		Context:    copyContext(c.Context),
	}
	resp, err := o.dispatch(ctx, decision, req)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		ChatID:        c.ID,
		ChatCreated:   created,
		UserMessageID: userMsg.ID,
		Content:       resp.Content,
		SourceAgent:   resp.SourceAgent,
		Kind:          resp.Kind,
		Intent:        decision.Intent,
		Entities:      entities,
		Confidence:    decision.Confidence,
		TargetAgent:   decision.TargetAgent,
		RoutingSource: decision.Source,
		Data:          resp.Data,
		Sources:       resp.Sources,
	}

	reply := &chat.Message{
		ChatID:     c.ID,
		SenderKind: chat.SenderAgentResponse,
		SenderID:   string(resp.SourceAgent),
		Content:    resp.Content,
		Metadata:   responseMetadata(decision, resp),
	}
	if err := o.conversations.Append(ctx, reply); err != nil {
		logger.Error("Failed to persist agent response",
			"source_agent", resp.SourceAgent,
			"error", err,
		)
	} else {
		result.ResponseMessageID = reply.ID
	}

	o.saveContext(ctx, c, decision, resp.ContextUpdates)

	logger.Info("Turn completed",
		"intent", decision.Intent,
		"target_agent", decision.TargetAgent,
		"source_agent", resp.SourceAgent,
		"routing_source", decision.Source,
		"kind", resp.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// route 依次尝试：待确认操作、店铺关键词、LLM 分类（失败回退 ML 先验）
func (o *Orchestrator) route(ctx context.Context, c *chat.Chat, in TurnInput) *intent.RoutingDecision {
	if in.SenderKind == chat.SenderCustomer {
		if _, pending := agents.PendingProfileUpdate(c.Context); pending {
			if _, matched := intent.ParseConfirmation(in.Text); matched {
				return &intent.RoutingDecision{
					Intent:      intent.UserProfile,
					TargetAgent: string(agent.UserProfile),
					Entities:    intent.Entities{},
					Confidence:  1,
					Source:      SourceConfirmation,
				}
			}
		}
	}

	if in.SenderKind == chat.SenderShop {
		if sub, ok := shop.Match(in.Text); ok {
			return &intent.RoutingDecision{
				Intent:      intent.ShopManagement,
				TargetAgent: string(agent.ShopManagement),
				Entities:    intent.Entities{intent.KeySubIntent: sub},
				Confidence:  1,
				Source:      SourceShopKeywords,
			}
		}
	}

	prior := o.predictor.Predict(ctx, in.Text)
	if prior == nil {
		prior = intent.FallbackPrediction()
	}
	return o.classify(ctx, in.Text, in.SenderKind, prior)
}

// dispatch 调用目标代理；出错或无结果时转交通用应答
// 校验错误直接返回给调用方，其余错误转为 kind=error 的回复
func (o *Orchestrator) dispatch(ctx context.Context, decision *intent.RoutingDecision, req *agent.Request) (*agent.Response, error) {
	target := o.agentFor(decision.TargetAgent, req.SenderKind)
	resp, err := o.invoke(ctx, target, req)
	if err == nil {
		return resp, nil
	}
	if apperr.IsValidationError(err) {
		return nil, err
	}

	if target.Name() != agent.General {
		if errors.Is(err, agent.ErrNoResult) {
			o.logger.Debug("Agent had no result, falling back to general", "agent", target.Name())
		} else {
			o.logger.Warn("Agent failed, falling back to general", "agent", target.Name(), "error", err)
		}
		general, _ := o.registry.Get(agent.General)
		if resp, err = o.invoke(ctx, general, req); err == nil {
			return resp, nil
		}
	}

	if errors.Is(err, agent.ErrNoResult) {
		err = apperr.Wrap(apperr.ErrNotFound, err)
	}
	o.logger.Error("General responder failed", "error", err)
	return &agent.Response{
		Content:     apperr.UserMessage(err),
		SourceAgent: agent.General,
		Kind:        agent.KindError,
	}, nil
}

// invoke 调用代理并兜住 panic
func (o *Orchestrator) invoke(ctx context.Context, a agent.Agent, req *agent.Request) (resp *agent.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Agent panicked", "agent", a.Name(), "panic", r)
			resp, err = nil, fmt.Errorf("agent %s panicked: %v", a.Name(), r)
		}
	}()
	resp, err = a.Handle(ctx, req)
	if err == nil && resp == nil {
		err = agent.ErrNoResult
	}
	if err == nil && resp.SourceAgent == "" {
		resp.SourceAgent = a.Name()
	}
	return resp, err
}

// agentFor 店铺调度只对店主开放，未知代理退回通用应答
func (o *Orchestrator) agentFor(name string, sender chat.SenderKind) agent.Agent {
	n, ok := agent.ParseName(name)
	if ok && n == agent.ShopManagement {
		if sender == chat.SenderShop && o.shop != nil {
			return o.shop
		}
		n = agent.General
	}
	if a, found := o.registry.Get(n); found {
		return a
	}
	general, _ := o.registry.Get(agent.General)
	return general
}

// saveContext 合并代理的上下文修改与最新路由决策，失败只记录日志
// 待确认的资料修改只对紧接着的下一轮有效，除非本轮重新发起
func (o *Orchestrator) saveContext(ctx context.Context, c *chat.Chat, decision *intent.RoutingDecision, updates map[string]any) {
	bag := copyContext(c.Context)
	delete(bag, chat.ContextPendingProfileUpdate)
	for k, v := range updates {
		if v == nil {
			delete(bag, k)
			continue
		}
		bag[k] = v
	}
	bag[chat.ContextRouting] = decisionMap(decision)

	if err := o.conversations.UpdateContext(ctx, c.ID, bag); err != nil {
		o.logger.Error("Failed to update chat context", "chat_id", c.ID, "error", err)
		return
	}
	c.Context = bag
}

func validateTurn(in *TurnInput) error {
	in.ChatID = strings.TrimSpace(in.ChatID)
	if strings.TrimSpace(in.Text) == "" {
		return apperr.NewValidationError("text", "message text is required")
	}
	if in.SenderKind != chat.SenderCustomer && in.SenderKind != chat.SenderShop {
		return apperr.NewValidationError("sender_kind", "sender_kind must be customer or shop")
	}
	if in.UserID <= 0 {
		return apperr.NewValidationError("user_id", "user_id must be positive")
	}
	return nil
}

// responseMetadata 助手消息的元数据
func responseMetadata(decision *intent.RoutingDecision, resp *agent.Response) map[string]any {
	meta := map[string]any{
		"intent":         string(decision.Intent),
		"source_agent":   string(resp.SourceAgent),
		"target_agent":   decision.TargetAgent,
		"entities":       decision.Entities,
		"confidence":     decision.Confidence,
		"kind":           string(resp.Kind),
		"routing_source": decision.Source,
	}
	if len(resp.Sources) > 0 {
		meta["sources"] = resp.Sources
	}
	if len(resp.Data) > 0 {
		meta["data"] = resp.Data
	}
	return meta
}

func copyContext(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
