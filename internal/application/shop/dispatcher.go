// Package shop 店主消息的二级调度：商品管理、库存、营销、经营分析、客服与政策
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// 子代理名称
const (
	SubProductManagement = "product_management"
	SubInventory         = "inventory"
	SubMarketing         = "marketing"
	SubAnalytics         = "analytics"
	SubCustomerService   = "customer_service"
	SubPolicy            = "policy"
)

// subAgentOrder 关键词命中数相同时的优先顺序
var subAgentOrder = []string{
	SubInventory,
	SubMarketing,
	SubAnalytics,
	SubCustomerService,
	SubPolicy,
	SubProductManagement,
}

// subAgentKeywords 子代理关键词（已 Fold）
var subAgentKeywords = map[string][]string{
	SubInventory:         {"ton kho", "het hang", "sap het", "nhap hang", "nhap them", "so luong con", "kho hang"},
	SubMarketing:         {"khuyen mai", "ma giam gia", "giam gia", "coupon", "voucher", "chuong trinh uu dai", "quang cao"},
	SubAnalytics:         {"doanh thu", "doanh so", "thong ke", "bao cao", "ban duoc", "don hang", "loi nhuan"},
	SubCustomerService:   {"tin nhan", "chua doc", "chua tra loi", "khach hoi", "phan hoi khach", "cham soc khach"},
	SubPolicy:            {"chinh sach", "bao hanh", "doi tra", "van chuyen", "quy dinh"},
	SubProductManagement: {"san pham cua shop", "san pham cua toi", "danh sach san pham", "doi gia", "sua gia", "cap nhat gia", "gia ban"},
}

const shopRoutePrompt = `You route messages from a shop owner on a Vietnamese e-commerce platform.
Sub-agents:
- "product_management": list the shop's products, change a product price
- "inventory": low stock, restock, set stock quantity
- "marketing": create, list or disable discount coupons
- "analytics": revenue, order count, best sellers over a period
- "customer_service": unread customer conversations
- "policy": warranty, return and shipping policies
Return a JSON object {"sub_agent": "...", "confidence": 0.0}.`

// SubAgent 店铺子代理
type SubAgent interface {
	Name() string
	Handle(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Dispatcher 店铺管理调度器，实现 agent.Agent
type Dispatcher struct {
	subAgents map[string]SubAgent
	completer llm.Completer
	logger    *slog.Logger
}

// NewDispatcher 创建调度器
func NewDispatcher(
	products *ProductManager,
	inventory *InventoryAgent,
	marketing *MarketingAgent,
	analytics *AnalyticsAgent,
	service *CustomerServiceAgent,
	policy *PolicyAgent,
	completer llm.Completer,
) *Dispatcher {
	d := &Dispatcher{
		subAgents: make(map[string]SubAgent),
		completer: completer,
		logger:    log.NewModuleLogger("shop", "dispatcher"),
	}
	for _, s := range []SubAgent{products, inventory, marketing, analytics, service, policy} {
		d.subAgents[s.Name()] = s
	}
	return d
}

// Name 实现 agent.Agent
func (d *Dispatcher) Name() agent.Name {
	return agent.ShopManagement
}

// Match 关键词匹配子代理，命中数最多者胜出
func Match(text string) (string, bool) {
	folded := intent.Fold(text)
	best, bestHits := "", 0
	for _, name := range subAgentOrder {
		hits := 0
		for _, kw := range subAgentKeywords[name] {
			if strings.Contains(folded, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best, bestHits > 0
}

// Handle 先关键词后 LLM 选择子代理
func (d *Dispatcher) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	if !req.IsShop() || req.UserID <= 0 {
		return nil, apperr.NewValidationError("sender_kind", "shop management requires a shop sender")
	}

	name, source := d.route(ctx, req)
	sub, ok := d.subAgents[name]
	if !ok {
		d.logger.Debug("No shop sub-agent selected", "chat_id", req.ChatID)
		return &agent.Response{
			Content: "Mình có thể giúp bạn quản lý sản phẩm, tồn kho, mã giảm giá, xem doanh thu, " +
				"tin nhắn chưa đọc của khách và chính sách cửa hàng. Bạn cần hỗ trợ việc gì?",
			SourceAgent: agent.ShopManagement,
			Kind:        agent.KindClarify,
		}, nil
	}

	d.logger.Debug("Shop sub-agent selected",
		"chat_id", req.ChatID,
		"shop_id", req.UserID,
		"sub_agent", name,
		"source", source,
	)

	resp, err := sub.Handle(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("shop sub-agent %s failed: %w", name, err)
	}
	resp.SourceAgent = agent.ShopManagement
	if resp.Data == nil {
		resp.Data = make(map[string]any)
	}
	resp.Data["sub_agent"] = name
	resp.Data["routing_source"] = source
	return resp, nil
}

// route 返回子代理名称与决策来源
func (d *Dispatcher) route(ctx context.Context, req *agent.Request) (string, string) {
	if sub := req.Entities.String(intent.KeySubIntent); sub != "" {
		if _, ok := d.subAgents[sub]; ok {
			return sub, "entities"
		}
	}
	if name, ok := Match(req.Message); ok {
		return name, "keywords"
	}

	content, err := d.completer.Complete(ctx, &llm.Request{
		Task:        "shop_route",
		System:      shopRoutePrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
		JSON:        true,
	})
	if err != nil {
		d.logger.Warn("Shop routing LLM call failed", "error", err)
		return "", ""
	}
	var out struct {
		SubAgent string `json:"sub_agent"`
	}
	if !llm.ExtractJSON(content, &out) {
		d.logger.Warn("Shop routing returned unparsable JSON", "content", llm.TruncateRunes(content, 200))
		return "", ""
	}
	if _, ok := d.subAgents[out.SubAgent]; !ok {
		d.logger.Warn("Shop routing returned unknown sub-agent", "sub_agent", out.SubAgent)
		return "", ""
	}
	return out.SubAgent, "llm"
}

var _ agent.Agent = (*Dispatcher)(nil)
