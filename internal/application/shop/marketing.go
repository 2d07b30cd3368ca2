package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

const (
	defaultCouponDays  = 30
	maxDiscountPercent = 90
)

var (
	// percentRe "10%"、"10 phần trăm"（已 Fold）
	percentRe = regexp.MustCompile(`(\d{1,3})\s*(?:%|phan\s+tram)`)
	// daysRe "trong 7 ngày"（已 Fold）
	daysRe = regexp.MustCompile(`(\d{1,3})\s*ngay`)
)

// MarketingAgent 营销：优惠券的创建、查询与停用
type MarketingAgent struct {
	coupons catalog.CouponRepository
	now     func() time.Time
	logger  *slog.Logger
}

// NewMarketingAgent 创建营销子代理
func NewMarketingAgent(coupons catalog.CouponRepository) *MarketingAgent {
	return &MarketingAgent{
		coupons: coupons,
		now:     time.Now,
		logger:  log.NewModuleLogger("shop", "marketing"),
	}
}

// Name 实现 SubAgent
func (a *MarketingAgent) Name() string { return SubMarketing }

// Handle 实现 SubAgent
func (a *MarketingAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	folded := intent.Fold(req.Message)
	code := couponCode(req.Message)

	switch {
	case containsAny(folded, "ngung", "tat ma", "vo hieu", "huy ma", "huy coupon", "huy voucher", "xoa ma"):
		if code == "" {
			return clarify("Bạn muốn ngừng mã giảm giá nào? Hãy cho mình mã cụ thể."), nil
		}
		return a.deactivate(ctx, req.UserID, code)
	case containsAny(folded, "tao", "them ma", "phat hanh", "lam ma"):
		return a.create(ctx, req.UserID, folded, code)
	default:
		return a.list(ctx, req.UserID)
	}
}

func (a *MarketingAgent) create(ctx context.Context, shopID int64, folded, code string) (*agent.Response, error) {
	m := percentRe.FindStringSubmatch(folded)
	if m == nil {
		return clarify("Bạn muốn mã giảm giá bao nhiêu phần trăm?"), nil
	}
	percent, _ := strconv.Atoi(m[1])
	if percent <= 0 || percent > maxDiscountPercent {
		return clarify(fmt.Sprintf("Mức giảm phải từ 1%% đến %d%%.", maxDiscountPercent)), nil
	}

	days := defaultCouponDays
	if d := daysRe.FindStringSubmatch(folded); d != nil {
		if v, err := strconv.Atoi(d[1]); err == nil && v > 0 {
			days = v
		}
	}
	if code == "" {
		code = generateCode(shopID, percent)
	}

	now := a.now()
	coupon := &catalog.Coupon{
		ShopID:          shopID,
		Code:            code,
		DiscountPercent: percent,
		ExpiresAt:       now.AddDate(0, 0, days),
		CreatedAt:       now,
	}
	if err := a.coupons.Create(ctx, coupon); err != nil {
		if errors.Is(err, catalog.ErrCouponExists) {
			return clarify(fmt.Sprintf("Mã %s đã tồn tại, bạn hãy chọn mã khác.", code)), nil
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to create coupon: %w", err))
	}
	a.logger.Info("Coupon created",
		"shop_id", shopID,
		"code", coupon.Code,
		"percent", percent,
		"days", days,
	)

	resp := answer(fmt.Sprintf("Đã tạo mã %s giảm %d%%, hiệu lực đến %s.",
		coupon.Code, percent, coupon.ExpiresAt.Format("02/01/2006")))
	resp.Data = map[string]any{"action": actionCreateCoupon, "coupon": coupon}
	return resp, nil
}

func (a *MarketingAgent) deactivate(ctx context.Context, shopID int64, code string) (*agent.Response, error) {
	if err := a.coupons.Deactivate(ctx, shopID, code); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to deactivate coupon: %w", err))
	}
	a.logger.Info("Coupon deactivated", "shop_id", shopID, "code", code)

	resp := answer(fmt.Sprintf("Đã ngừng mã giảm giá %s.", code))
	resp.Data = map[string]any{"action": actionDisable, "code": code}
	return resp, nil
}

func (a *MarketingAgent) list(ctx context.Context, shopID int64) (*agent.Response, error) {
	coupons, err := a.coupons.ListActive(ctx, shopID, a.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list coupons: %w", err))
	}
	if len(coupons) == 0 {
		resp := answer("Cửa hàng chưa có mã giảm giá nào đang hoạt động. " +
			"Bạn có thể nói \"tạo mã giảm giá 10% trong 7 ngày\" để tạo mới.")
		resp.Data = map[string]any{"action": actionList}
		return resp, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Có %d mã giảm giá đang hoạt động:", len(coupons))
	for i, c := range coupons {
		fmt.Fprintf(&b, "\n%d. %s - giảm %d%% - hết hạn %s", i+1, c.Code, c.DiscountPercent, c.ExpiresAt.Format("02/01/2006"))
	}
	resp := answer(b.String())
	resp.Data = map[string]any{"action": actionList, "coupons": coupons}
	return resp, nil
}

// couponCode 消息中形如 SALE10 的大写字母数字组合
func couponCode(text string) string {
	for _, f := range strings.Fields(text) {
		token := strings.Trim(f, ".,!?:;\"'()")
		if len(token) < 4 || len(token) > 20 {
			continue
		}
		letter, digit, ok := false, false, true
		for _, r := range token {
			switch {
			case r >= 'A' && r <= 'Z':
				letter = true
			case unicode.IsDigit(r):
				digit = true
			case r == '-' || r == '_':
			default:
				ok = false
			}
		}
		if ok && letter && digit {
			return token
		}
	}
	return ""
}

func generateCode(shopID int64, percent int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("S%dGIAM%d-%s", shopID, percent, suffix)
}
