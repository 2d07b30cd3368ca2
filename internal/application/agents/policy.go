package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

const (
	// policyCandidates 检索的 FAQ 条数，只有第一条作为依据
	policyCandidates = 3
	// policyThreshold FAQ 相似度下限
	policyThreshold = 0.3
)

const policyPrompt = `You are the customer-care assistant of a Vietnamese e-commerce shop.
Answer the customer's question using ONLY the FAQ provided below.
If the FAQ does not contain the answer, say that you do not have that information and suggest contacting support.
Answer in Vietnamese, in a single short paragraph, without inventing numbers, dates or conditions.`

// PolicyAgent 政策问答代理，以最相近的 FAQ 作为唯一依据
type PolicyAgent struct {
	retrieval *retrieval.Service
	completer llm.Completer
	logger    *slog.Logger
}

// NewPolicyAgent 创建政策问答代理
func NewPolicyAgent(retrieval *retrieval.Service, completer llm.Completer) *PolicyAgent {
	return &PolicyAgent{
		retrieval: retrieval,
		completer: completer,
		logger:    log.NewModuleLogger("agents", "policy"),
	}
}

// Name 实现 agent.Agent
func (a *PolicyAgent) Name() agent.Name {
	return agent.PolicyQA
}

// Handle 检索 FAQ，交给 LLM 改写为单段回答；LLM 不可用时直接给出 FAQ 答案
func (a *PolicyAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	results, err := a.retrieval.SemanticSearch(ctx, req.Message, vector.CollectionFAQs, policyCandidates,
		vector.SearchOptions{Threshold: vector.Threshold(policyThreshold)})
	if err != nil {
		return failure(a.Name(), a.logger, upstream(err)), nil
	}
	if len(results) == 0 {
		return notFound(a.Name(),
			"Xin lỗi, mình chưa có thông tin về chính sách này. Bạn vui lòng liên hệ bộ phận chăm sóc khách hàng để được hỗ trợ."), nil
	}

	top := results[0]
	question, faqAnswer := top.String(vector.PayloadQuestion), top.String(vector.PayloadAnswer)

	content, err := a.completer.Complete(ctx, &llm.Request{
		Task:        "policy_answer",
		System:      policyPrompt,
		User:        fmt.Sprintf("FAQ question: %s\nFAQ answer: %s\n\nCustomer question: %s", question, faqAnswer, req.Message),
		Temperature: llm.Temperature(0.2),
	})
	content = singleParagraph(content)
	if err != nil || content == "" {
		a.logger.Warn("Policy answer generation failed, returning FAQ answer",
			"chat_id", req.ChatID,
			"faq_id", top.ID,
			"error", err,
		)
		content = singleParagraph(faqAnswer)
	}

	resp := answer(a.Name(), content)
	resp.Data = map[string]any{
		"faq_id":   top.ID,
		"question": question,
		"score":    top.Score,
	}
	resp.Sources = resultSources(vector.CollectionFAQs, results[:1])
	return resp, nil
}

// singleParagraph 合并为单段文本
func singleParagraph(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
