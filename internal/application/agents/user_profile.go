package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// 资料操作
const (
	OpGetProfile        = "get_profile"
	OpUpdateProfile     = "update_profile"
	OpGetPreferences    = "get_preferences"
	OpUpdatePreferences = "update_preferences"
)

const profilePrompt = `You read requests about a customer's account on a Vietnamese e-commerce shop.
Return a JSON object:
{
  "operation": "get_profile" | "update_profile" | "get_preferences" | "update_preferences",
  "profile": {"name": "", "email": "", "phone": "", "address": ""},
  "preferences": {"categories": [], "brands": [], "price_min": 0, "price_max": 0}
}
Only fill the fields the customer explicitly wants to change; leave the others empty.`

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+84|0)\d{9,10}\b`)
)

// profileQuery 资料请求
type profileQuery struct {
	Operation string `json:"operation"`
	Profile   struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	} `json:"profile"`
	Preferences struct {
		Categories []string `json:"categories"`
		Brands     []string `json:"brands"`
		PriceMin   int64    `json:"price_min"`
		PriceMax   int64    `json:"price_max"`
	} `json:"preferences"`
}

// UserProfileAgent 个人资料代理，修改需要用户在下一轮明确同意后才写入
type UserProfileAgent struct {
	customers  catalog.CustomerRepository
	categories catalog.CategoryRepository
	completer  llm.Completer
	logger     *slog.Logger
}

// NewUserProfileAgent 创建个人资料代理
func NewUserProfileAgent(customers catalog.CustomerRepository, categories catalog.CategoryRepository, completer llm.Completer) *UserProfileAgent {
	return &UserProfileAgent{
		customers:  customers,
		categories: categories,
		completer:  completer,
		logger:     log.NewModuleLogger("agents", "user_profile"),
	}
}

// Name 实现 agent.Agent
func (a *UserProfileAgent) Name() agent.Name {
	return agent.UserProfile
}

// Handle 处理待确认的修改，或查询、发起修改
func (a *UserProfileAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	if req.IsShop() || req.UserID <= 0 {
		return clarify(a.Name(), "Bạn vui lòng đăng nhập tài khoản khách hàng để xem hoặc cập nhật thông tin cá nhân."), nil
	}

	if pending, ok := PendingProfileUpdate(req.Context); ok {
		if confirmed, matched := intent.ParseConfirmation(req.Message); matched {
			return a.resolvePending(ctx, req, pending, confirmed)
		}
	}

	customer, err := a.customers.Get(ctx, req.UserID)
	if err != nil {
		return failure(a.Name(), a.logger, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get customer: %w", err))), nil
	}
	if customer == nil {
		return notFound(a.Name(), "Không tìm thấy thông tin tài khoản của bạn."), nil
	}

	q := a.parse(ctx, req)
	switch q.Operation {
	case OpGetPreferences:
		resp := answer(a.Name(), renderPreferences(&customer.Preferences))
		resp.Data = map[string]any{"operation": q.Operation, "preferences": customer.Preferences}
		return resp, nil
	case OpUpdateProfile, OpUpdatePreferences:
		update, err := a.buildUpdate(ctx, req, q, customer)
		if err != nil {
			return failure(a.Name(), a.logger, err), nil
		}
		if update.IsEmpty() {
			return clarify(a.Name(), "Bạn muốn cập nhật thông tin nào? Ví dụ: email, số điện thoại, địa chỉ hoặc thương hiệu yêu thích."), nil
		}
		return a.requestConfirmation(q.Operation, update)
	default:
		resp := answer(a.Name(), renderProfile(customer))
		resp.Data = map[string]any{"operation": OpGetProfile, "profile": customer}
		return resp, nil
	}
}

// PendingProfileUpdate 读取会话上下文中等待确认的修改
func PendingProfileUpdate(ctxBag map[string]any) (*catalog.ProfileUpdate, bool) {
	raw, ok := ctxBag[chat.ContextPendingProfileUpdate]
	if !ok || raw == nil {
		return nil, false
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var update catalog.ProfileUpdate
	if err := json.Unmarshal(data, &update); err != nil || update.IsEmpty() {
		return nil, false
	}
	return &update, true
}

func (a *UserProfileAgent) resolvePending(ctx context.Context, req *agent.Request, update *catalog.ProfileUpdate, confirmed bool) (*agent.Response, error) {
	done := map[string]any{chat.ContextPendingProfileUpdate: nil}
	if !confirmed {
		resp := answer(a.Name(), "Đã hủy yêu cầu cập nhật. Thông tin của bạn được giữ nguyên.")
		resp.ContextUpdates = done
		return resp, nil
	}

	customer, err := a.customers.UpdateProfile(ctx, req.UserID, update)
	if err != nil {
		resp := failure(a.Name(), a.logger, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to update profile: %w", err)))
		resp.ContextUpdates = done
		return resp, nil
	}
	if customer == nil {
		resp := notFound(a.Name(), "Không tìm thấy thông tin tài khoản của bạn.")
		resp.ContextUpdates = done
		return resp, nil
	}

	a.logger.Info("Customer profile updated",
		"chat_id", req.ChatID,
		"customer_id", req.UserID,
	)
	resp := answer(a.Name(), "Đã cập nhật thông tin của bạn.\n"+renderProfile(customer))
	resp.Data = map[string]any{"operation": "confirmed", "profile": customer}
	resp.ContextUpdates = done
	return resp, nil
}

// parse LLM 解析操作与字段，失败时按关键词与正则判断
func (a *UserProfileAgent) parse(ctx context.Context, req *agent.Request) *profileQuery {
	q := &profileQuery{}
	completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:        "profile_parse",
		System:      profilePrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
	}, q)

	if q.Profile.Email == "" {
		q.Profile.Email = emailPattern.FindString(req.Message)
	}
	if q.Profile.Phone == "" {
		q.Profile.Phone = phonePattern.FindString(req.Message)
	}

	switch q.Operation {
	case OpGetProfile, OpUpdateProfile, OpGetPreferences, OpUpdatePreferences:
		return q
	}

	folded := intent.Fold(req.Message)
	update := q.Profile.Email != "" || q.Profile.Phone != "" ||
		strings.Contains(folded, "cap nhat") || strings.Contains(folded, "thay doi") ||
		strings.Contains(folded, "doi ") || strings.Contains(folded, "sua ")
	preferences := strings.Contains(folded, "so thich") || strings.Contains(folded, "yeu thich") ||
		strings.Contains(folded, "uu tien")
	switch {
	case update && preferences:
		q.Operation = OpUpdatePreferences
	case update:
		q.Operation = OpUpdateProfile
	case preferences:
		q.Operation = OpGetPreferences
	default:
		q.Operation = OpGetProfile
	}
	return q
}

// buildUpdate 只包含确实改变的字段；偏好以现有偏好为基础合并
func (a *UserProfileAgent) buildUpdate(ctx context.Context, req *agent.Request, q *profileQuery, customer *catalog.Customer) (*catalog.ProfileUpdate, error) {
	update := &catalog.ProfileUpdate{}
	set := func(dst **string, value, current string) {
		if value = strings.TrimSpace(value); value != "" && value != current {
			*dst = &value
		}
	}
	set(&update.Name, q.Profile.Name, customer.Name)
	set(&update.Email, q.Profile.Email, customer.Email)
	set(&update.Phone, q.Profile.Phone, customer.Phone)
	set(&update.Address, q.Profile.Address, customer.Address)

	if q.Operation != OpUpdatePreferences {
		return update, nil
	}

	prefs := customer.Preferences
	changed := false

	categories := q.Preferences.Categories
	if len(categories) == 0 {
		if c := req.Entities.String(intent.KeyCategory); c != "" {
			categories = []string{c}
		}
	}
	if len(categories) > 0 {
		ids := make([]string, 0, len(categories))
		for _, c := range categories {
			id, err := resolveCategoryID(ctx, a.categories, c)
			if err != nil {
				return nil, err
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			prefs.Categories, changed = ids, true
		}
	}

	brands := q.Preferences.Brands
	if len(brands) == 0 {
		if b := req.Entities.String(intent.KeyBrand); b != "" {
			brands = []string{b}
		}
	}
	if len(brands) > 0 {
		prefs.Brands, changed = brands, true
	}

	priceRange := intent.PriceRange{Min: q.Preferences.PriceMin, Max: q.Preferences.PriceMax}
	if priceRange.IsZero() {
		priceRange = req.Entities.PriceRange()
	}
	if !priceRange.IsZero() {
		prefs.PriceMin, prefs.PriceMax, changed = priceRange.Min, priceRange.Max, true
	}

	if changed {
		update.Preferences = &prefs
	}
	return update, nil
}

// requestConfirmation 写入待确认修改并提示用户确认
func (a *UserProfileAgent) requestConfirmation(operation string, update *catalog.ProfileUpdate) (*agent.Response, error) {
	var pending map[string]any
	data, err := json.Marshal(update)
	if err == nil {
		err = json.Unmarshal(data, &pending)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending profile update: %w", err)
	}

	var b strings.Builder
	b.WriteString("Bạn muốn cập nhật các thông tin sau:")
	for _, line := range describeUpdate(update) {
		b.WriteString("\n- " + line)
	}
	b.WriteString("\nTrả lời \"Đồng ý\" để xác nhận hoặc \"Hủy\" để bỏ qua.")

	return &agent.Response{
		Content:        b.String(),
		SourceAgent:    a.Name(),
		Kind:           agent.KindConfirmation,
		Data:           map[string]any{"operation": operation, "pending_update": pending},
		ContextUpdates: map[string]any{chat.ContextPendingProfileUpdate: pending},
	}, nil
}

func describeUpdate(u *catalog.ProfileUpdate) []string {
	var lines []string
	if u.Name != nil {
		lines = append(lines, "Họ tên: "+*u.Name)
	}
	if u.Email != nil {
		lines = append(lines, "Email: "+*u.Email)
	}
	if u.Phone != nil {
		lines = append(lines, "Số điện thoại: "+*u.Phone)
	}
	if u.Address != nil {
		lines = append(lines, "Địa chỉ: "+*u.Address)
	}
	if u.Preferences != nil {
		for _, line := range strings.Split(renderPreferences(u.Preferences), "\n")[1:] {
			lines = append(lines, strings.TrimPrefix(line, "- "))
		}
	}
	return lines
}

func renderProfile(c *catalog.Customer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thông tin tài khoản:\n- Họ tên: %s", c.Name)
	if c.Email != "" {
		fmt.Fprintf(&b, "\n- Email: %s", c.Email)
	}
	if c.Phone != "" {
		fmt.Fprintf(&b, "\n- Số điện thoại: %s", c.Phone)
	}
	if c.Address != "" {
		fmt.Fprintf(&b, "\n- Địa chỉ: %s", c.Address)
	}
	return b.String()
}

// renderPreferences 首行为标题，其后每行一项
func renderPreferences(p *catalog.Preferences) string {
	var b strings.Builder
	b.WriteString("Sở thích mua sắm:")
	empty := true
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, "\n- Danh mục: %s", strings.Join(p.Categories, ", "))
		empty = false
	}
	if len(p.Brands) > 0 {
		fmt.Fprintf(&b, "\n- Thương hiệu: %s", strings.Join(p.Brands, ", "))
		empty = false
	}
	if p.PriceMin > 0 || p.PriceMax > 0 {
		switch {
		case p.PriceMin > 0 && p.PriceMax > 0:
			fmt.Fprintf(&b, "\n- Khoảng giá: %s - %s", catalog.FormatPrice(p.PriceMin), catalog.FormatPrice(p.PriceMax))
		case p.PriceMax > 0:
			fmt.Fprintf(&b, "\n- Khoảng giá: dưới %s", catalog.FormatPrice(p.PriceMax))
		default:
			fmt.Fprintf(&b, "\n- Khoảng giá: từ %s", catalog.FormatPrice(p.PriceMin))
		}
		empty = false
	}
	if empty {
		b.WriteString("\n- Chưa có thông tin")
	}
	return b.String()
}
