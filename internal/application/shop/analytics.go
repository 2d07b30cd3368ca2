package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

const (
	topProducts       = 5
	defaultPeriodDays = 30
	unreadChatsLimit  = 50
	previewRunes      = 80
)

// AnalyticsAgent 经营分析：订单数、营收与畅销商品
type AnalyticsAgent struct {
	orders catalog.OrderRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewAnalyticsAgent 创建经营分析子代理
func NewAnalyticsAgent(orders catalog.OrderRepository) *AnalyticsAgent {
	return &AnalyticsAgent{
		orders: orders,
		now:    time.Now,
		logger: log.NewModuleLogger("shop", "analytics"),
	}
}

// Name 实现 SubAgent
func (a *AnalyticsAgent) Name() string { return SubAnalytics }

// Handle 实现 SubAgent
func (a *AnalyticsAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	days, label := periodFromText(intent.Fold(req.Message))
	since := a.now().AddDate(0, 0, -days)

	stats, err := a.orders.ShopStats(ctx, req.UserID, since, topProducts)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to load shop stats: %w", err))
	}
	a.logger.Debug("Shop stats loaded",
		"shop_id", req.UserID,
		"days", days,
		"orders", stats.OrderCount,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d đơn hàng, doanh thu %s.", label, stats.OrderCount, catalog.FormatPrice(stats.Revenue))
	if len(stats.TopProducts) > 0 {
		b.WriteString("\nSản phẩm bán chạy:")
		for i, s := range stats.TopProducts {
			fmt.Fprintf(&b, "\n%d. %s - %d đã bán - %s", i+1, s.Name, s.Quantity, catalog.FormatPrice(s.Revenue))
		}
	}

	resp := answer(b.String())
	resp.Data = map[string]any{"period_days": days, "stats": stats}
	return resp, nil
}

// periodFromText 统计区间天数与展示文案
func periodFromText(folded string) (int, string) {
	switch {
	case containsAny(folded, "hom nay", "trong ngay", "today"):
		return 1, "Hôm nay"
	case containsAny(folded, "tuan", "7 ngay", "week"):
		return 7, "7 ngày qua"
	case containsAny(folded, "nam nay", "mot nam", "1 nam", "12 thang", "year"):
		return 365, "12 tháng qua"
	case containsAny(folded, "quy", "3 thang", "90 ngay"):
		return 90, "90 ngày qua"
	default:
		return defaultPeriodDays, "30 ngày qua"
	}
}

// CustomerServiceAgent 客服：列出有未读消息的进行中会话
type CustomerServiceAgent struct {
	chats  chat.Repository
	logger *slog.Logger
}

// NewCustomerServiceAgent 创建客服子代理
func NewCustomerServiceAgent(chats chat.Repository) *CustomerServiceAgent {
	return &CustomerServiceAgent{
		chats:  chats,
		logger: log.NewModuleLogger("shop", "customer_service"),
	}
}

// Name 实现 SubAgent
func (a *CustomerServiceAgent) Name() string { return SubCustomerService }

// UnreadChat 未读会话摘要
type UnreadChat struct {
	ChatID      string    `json:"chat_id"`
	CustomerID  *int64    `json:"customer_id,omitempty"`
	UnreadCount int       `json:"unread_count"`
	LastMessage string    `json:"last_message,omitempty"`
	LastAt      time.Time `json:"last_activity"`
}

// Handle 实现 SubAgent
func (a *CustomerServiceAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	shopID := req.UserID
	summaries, err := a.chats.List(ctx, chat.ListFilter{
		ShopID: &shopID,
		Status: chat.StatusActive,
		Limit:  unreadChatsLimit,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list shop chats: %w", err))
	}

	var unread []UnreadChat
	total := 0
	for _, s := range summaries {
		// 店主自己的助手会话不算
		if s.UnreadCount == 0 || s.Chat.ID == req.ChatID || s.Chat.CustomerID == nil {
			continue
		}
		u := UnreadChat{
			ChatID:      s.Chat.ID,
			CustomerID:  s.Chat.CustomerID,
			UnreadCount: s.UnreadCount,
			LastAt:      s.Chat.LastActivity,
		}
		if s.LastMessage != nil {
			u.LastMessage = llm.TruncateRunes(s.LastMessage.Content, previewRunes)
		}
		unread = append(unread, u)
		total += s.UnreadCount
	}

	if len(unread) == 0 {
		resp := answer("Không có tin nhắn nào của khách hàng đang chờ bạn trả lời.")
		resp.Data = map[string]any{"unread_chats": unread, "unread_total": 0}
		return resp, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bạn có %d tin nhắn chưa đọc trong %d cuộc trò chuyện:", total, len(unread))
	for i, u := range unread {
		fmt.Fprintf(&b, "\n%d. Khách #%d - %d tin chưa đọc", i+1, *u.CustomerID, u.UnreadCount)
		if u.LastMessage != "" {
			fmt.Fprintf(&b, ": \"%s\"", u.LastMessage)
		}
	}
	resp := answer(b.String())
	resp.Data = map[string]any{"unread_chats": unread, "unread_total": total}
	return resp, nil
}

// PolicyAgent 店铺政策问答，复用 FAQ 检索应答
type PolicyAgent struct {
	policy *agents.PolicyAgent
}

// NewPolicyAgent 创建政策子代理
func NewPolicyAgent(policy *agents.PolicyAgent) *PolicyAgent {
	return &PolicyAgent{policy: policy}
}

// Name 实现 SubAgent
func (a *PolicyAgent) Name() string { return SubPolicy }

// Handle 实现 SubAgent
func (a *PolicyAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	return a.policy.Handle(ctx, req)
}
