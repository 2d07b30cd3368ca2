package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
)

// 路由决策来源
const (
	SourceLLM          = "llm"
	SourceMLFallback   = "ml_fallback"
	SourceConfirmation = "confirmation"
	SourceShopKeywords = "shop_keywords"
)

// routingTable 意图到代理的固定映射，未列出的意图交给通用应答
var routingTable = map[intent.Label]agent.Name{
	intent.ProductSearch:   agent.SearchDiscovery,
	intent.ProductInfo:     agent.ProductInfo,
	intent.Recommendation:  agent.Recommendation,
	intent.CompareProducts: agent.ProductComparison,
	intent.UserProfile:     agent.UserProfile,
	intent.PolicyQuestion:  agent.PolicyQA,
	intent.ShopManagement:  agent.ShopManagement,
}

// AgentFor 查表得到意图对应的代理
func AgentFor(label intent.Label) agent.Name {
	if name, ok := routingTable[label]; ok {
		return name
	}
	return agent.General
}

const classifierPrompt = `You are the intent classifier of a Vietnamese e-commerce assistant.
Intents:
- product_search: find or browse products, filter by price, brand or category
- product_info: details, price, stock or specifications of one product
- recommendation: suggestions or best sellers
- compare_products: compare two or more products
- review_inquiry: what other customers say about a product
- user_profile: view or update the customer's own account or preferences
- policy_question: warranty, returns, shipping, payment policies
- cart_management: add, remove or view cart items
- order_tracking: status of an existing order
- general_inquiry: greetings and anything else
- support_request: complaints or requests for a human
Agents: search_discovery, product_info, recommendation, product_comparison, policy_qa, user_profile, general%s.
Entity keys: product_id, product_ids, product_name, product_names, category, brand, price_range {"min","max"} in VND, order_id, attributes.
A cheap statistical classifier suggests "%s" with confidence %.2f. Confirm or override it.
Return only a JSON object {"intent": "...", "entities": {}, "target_agent": "", "confidence": 0.0}.
Leave target_agent empty unless a different agent than the usual one for the intent is clearly needed.`

// classification LLM 分类结果
type classification struct {
	Intent      string          `json:"intent"`
	Entities    intent.Entities `json:"entities"`
	TargetAgent string          `json:"target_agent"`
	Confidence  *float64        `json:"confidence"`
}

// classify 以 ML 先验调用 LLM 分类；解析失败时退回 ML 先验
func (o *Orchestrator) classify(ctx context.Context, text string, sender chat.SenderKind, prior *intent.Prediction) *intent.RoutingDecision {
	shopAgent := ""
	if sender == chat.SenderShop {
		shopAgent = ", shop_management (shop owners managing their store)"
	}

	fallback := &intent.RoutingDecision{
		Intent:      prior.Label,
		TargetAgent: string(AgentFor(prior.Label)),
		Entities:    intent.Entities{},
		Confidence:  prior.Confidence,
		Source:      SourceMLFallback,
	}

	content, err := o.completer.Complete(ctx, &llm.Request{
		Task:        "intent_classifier",
		System:      fmt.Sprintf(classifierPrompt, shopAgent, prior.Label, prior.Confidence),
		User:        llm.TruncateRunes(text, o.maxClassifierChars()),
		Temperature: llm.Temperature(0),
		JSON:        true,
	})
	if err != nil {
		o.logger.Warn("Intent classifier LLM call failed, using ML prior",
			"prior", prior.Label,
			"error", err,
		)
		return fallback
	}

	var out classification
	if !llm.ExtractJSON(content, &out) {
		o.logger.Warn("Intent classifier returned unparsable JSON, using ML prior",
			"prior", prior.Label,
			"content", llm.TruncateRunes(content, 200),
		)
		return fallback
	}
	label, ok := intent.ParseLabel(strings.TrimSpace(out.Intent))
	if !ok {
		o.logger.Warn("Intent classifier returned unknown intent, using ML prior",
			"intent", out.Intent,
			"prior", prior.Label,
		)
		return fallback
	}

	decision := &intent.RoutingDecision{
		Intent:      label,
		TargetAgent: string(AgentFor(label)),
		Entities:    out.Entities,
		Confidence:  prior.Confidence,
		Source:      SourceLLM,
	}
	if out.Confidence != nil && *out.Confidence >= 0 && *out.Confidence <= 1 {
		decision.Confidence = *out.Confidence
	}
	if name, ok := agent.ParseName(strings.TrimSpace(out.TargetAgent)); ok {
		if name != agent.ShopManagement || sender == chat.SenderShop {
			decision.TargetAgent = string(name)
		}
	}
	if decision.Entities == nil {
		decision.Entities = intent.Entities{}
	}
	return decision
}

func (o *Orchestrator) maxClassifierChars() int {
	if o.cfg.MaxClassifierChars > 0 {
		return o.cfg.MaxClassifierChars
	}
	return 2000
}

// decisionMap 路由决策转为可写入会话上下文与消息元数据的 map
func decisionMap(d *intent.RoutingDecision) map[string]any {
	raw, err := json.Marshal(d)
	if err != nil {
		return map[string]any{"intent": string(d.Intent), "target_agent": d.TargetAgent}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"intent": string(d.Intent), "target_agent": d.TargetAgent}
	}
	return out
}
