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

	"github.com/shopmind/backend/internal/application/agents"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

const (
	listLimit          = 20
	lowStockThreshold  = 5
	minPlausiblePrice  = 1_000
	actionList         = "list"
	actionUpdatePrice  = "update_price"
	actionLowStock     = "low_stock"
	actionSetStock     = "set_stock"
	actionAddStock     = "add_stock"
	actionCreateCoupon = "create"
	actionDisable      = "deactivate"
)

var (
	amountRe = regexp.MustCompile(intent.AmountPattern)
	// explicitIDRe "#123"、"mã 123"、"sản phẩm 123"（已 Fold）
	explicitIDRe = regexp.MustCompile(`(?:#|\bma\s+(?:sp\s+|san\s+pham\s+)?|\bid\s*:?\s*)(\d+)\b`)
	// priceTargetRe "giá <tên> thành ..."（已 Fold）
	priceTargetRe = regexp.MustCompile(`\bgia\s+(?:ban\s+)?(?:cua\s+)?(?:san\s+pham\s+|sp\s+)?(.+?)\s+(?:thanh|len|xuong|ve|con|la|=|:)\s*\d`)
	// stockTargetRe "tồn kho <tên> thành 20"（已 Fold）
	stockTargetRe = regexp.MustCompile(`\b(?:ton\s+kho|so\s+luong|kho)\s+(?:cua\s+)?(?:san\s+pham\s+|sp\s+)?(.+?)\s+(?:thanh|len|xuong|ve|con|la|=|:)\s*(\d+)\b`)
	// restockRe "nhập thêm 10 <tên>"（已 Fold）
	restockRe = regexp.MustCompile(`\bnhap\s+(?:them\s+)?(\d+)\s+(?:chiec\s+|cai\s+|may\s+|san\s+pham\s+)?(.+?)\s*[.!?]*$`)
)

const productParsePrompt = `Extract a product management command from a shop owner's message.
Return a JSON object {"action": "list" | "update_price", "product_id": 0, "product_name": "", "price": 0}.
Prices are in VND as integers. Use 0 or "" for missing values.`

// ProductManager 商品管理：列出店铺商品、修改售价
type ProductManager struct {
	products  catalog.ProductRepository
	resolver  *agents.ProductResolver
	publisher events.Publisher
	completer llm.Completer
	logger    *slog.Logger
}

// NewProductManager 创建商品管理子代理
func NewProductManager(
	products catalog.ProductRepository,
	resolver *agents.ProductResolver,
	publisher events.Publisher,
	completer llm.Completer,
) *ProductManager {
	return &ProductManager{
		products:  products,
		resolver:  resolver,
		publisher: publisher,
		completer: completer,
		logger:    log.NewModuleLogger("shop", "product_management"),
	}
}

// Name 实现 SubAgent
func (a *ProductManager) Name() string { return SubProductManagement }

type productCommand struct {
	Action      string `json:"action"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
}

// Handle 实现 SubAgent
func (a *ProductManager) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	cmd := a.parse(ctx, req)
	if cmd.Action != actionUpdatePrice {
		return a.list(ctx, req.UserID)
	}

	p, resp, err := resolveOwned(ctx, a.resolver, req.UserID, cmd.ProductID, cmd.ProductName)
	if resp != nil || err != nil {
		return resp, err
	}
	if cmd.Price <= 0 {
		return clarify(fmt.Sprintf("Bạn muốn đổi giá %s thành bao nhiêu?", p.Name)), nil
	}
	if cmd.Price == p.Price {
		return answer(fmt.Sprintf("Giá %s đã là %s, không cần thay đổi.", p.Name, catalog.FormatPrice(p.Price))), nil
	}

	if err := a.products.UpdatePrice(ctx, p.ID, cmd.Price); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to update price of product %d: %w", p.ID, err))
	}
	publishProduct(a.publisher, p.ID)
	a.logger.Info("Product price updated",
		"shop_id", req.UserID,
		"product_id", p.ID,
		"old_price", p.Price,
		"new_price", cmd.Price,
	)

	resp = answer(fmt.Sprintf("Đã cập nhật giá %s từ %s thành %s.",
		p.Name, catalog.FormatPrice(p.Price), catalog.FormatPrice(cmd.Price)))
	resp.Data = map[string]any{
		"action":     actionUpdatePrice,
		"product_id": p.ID,
		"old_price":  p.Price,
		"new_price":  cmd.Price,
	}
	return resp, nil
}

func (a *ProductManager) list(ctx context.Context, shopID int64) (*agent.Response, error) {
	products, err := a.products.ListByShop(ctx, shopID, listLimit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list shop products: %w", err))
	}
	if len(products) == 0 {
		resp := answer("Cửa hàng của bạn chưa có sản phẩm nào.")
		resp.Kind = agent.KindNotFound
		return resp, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cửa hàng của bạn có %d sản phẩm:", len(products))
	for i, p := range products {
		fmt.Fprintf(&b, "\n%d. %s (#%d) - %s - tồn kho: %d", i+1, p.Name, p.ID, catalog.FormatPrice(p.Price), p.Stock)
	}
	resp := answer(b.String())
	resp.Data = map[string]any{"action": actionList, "products": products}
	return resp, nil
}

// parse LLM 解析，缺失字段由规则补齐
func (a *ProductManager) parse(ctx context.Context, req *agent.Request) *productCommand {
	cmd := &productCommand{ProductName: req.Entities.String(intent.KeyProductName)}
	cmd.ProductID, _ = req.Entities.Int64(intent.KeyProductID)

	var out productCommand
	if completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:        "shop_product_parse",
		System:      productParsePrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
	}, &out) {
		cmd.Action = out.Action
		if out.ProductID > 0 {
			cmd.ProductID = out.ProductID
		}
		if out.ProductName != "" {
			cmd.ProductName = out.ProductName
		}
		cmd.Price = out.Price
	}

	folded := intent.Fold(req.Message)
	if cmd.Action == "" {
		cmd.Action = actionList
		if containsAny(folded, "doi gia", "sua gia", "cap nhat gia", "chinh gia", "tang gia", "gia ban") {
			cmd.Action = actionUpdatePrice
		}
	}
	if cmd.ProductID <= 0 {
		cmd.ProductID = explicitID(folded)
	}
	if cmd.ProductID <= 0 && cmd.ProductName == "" {
		if m := priceTargetRe.FindStringSubmatch(folded); m != nil {
			cmd.ProductName = strings.TrimSpace(m[1])
		}
	}
	if cmd.Price <= 0 {
		cmd.Price = targetPrice(folded)
	}
	return cmd
}

// InventoryAgent 库存：低库存预警、设置库存、补货
type InventoryAgent struct {
	products  catalog.ProductRepository
	resolver  *agents.ProductResolver
	publisher events.Publisher
	logger    *slog.Logger
}

// NewInventoryAgent 创建库存子代理
func NewInventoryAgent(products catalog.ProductRepository, resolver *agents.ProductResolver, publisher events.Publisher) *InventoryAgent {
	return &InventoryAgent{
		products:  products,
		resolver:  resolver,
		publisher: publisher,
		logger:    log.NewModuleLogger("shop", "inventory"),
	}
}

// Name 实现 SubAgent
func (a *InventoryAgent) Name() string { return SubInventory }

// Handle 实现 SubAgent
func (a *InventoryAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	folded := intent.Fold(req.Message)

	if m := restockRe.FindStringSubmatch(folded); m != nil {
		qty, _ := strconv.Atoi(m[1])
		return a.adjust(ctx, req, explicitID(folded), strings.TrimSpace(m[2]), qty, true)
	}
	if m := stockTargetRe.FindStringSubmatch(folded); m != nil {
		qty, _ := strconv.Atoi(m[2])
		return a.adjust(ctx, req, explicitID(folded), strings.TrimSpace(m[1]), qty, false)
	}
	return a.lowStock(ctx, req.UserID)
}

func (a *InventoryAgent) lowStock(ctx context.Context, shopID int64) (*agent.Response, error) {
	products, err := a.products.LowStock(ctx, shopID, lowStockThreshold)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list low stock products: %w", err))
	}
	if len(products) == 0 {
		resp := answer(fmt.Sprintf("Tất cả sản phẩm đều còn trên %d đơn vị trong kho.", lowStockThreshold))
		resp.Data = map[string]any{"action": actionLowStock, "threshold": lowStockThreshold}
		return resp, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Có %d sản phẩm sắp hết hoặc đã hết hàng:", len(products))
	for i, p := range products {
		status := fmt.Sprintf("còn %d", p.Stock)
		if p.Stock <= 0 {
			status = "đã hết hàng"
		}
		fmt.Fprintf(&b, "\n%d. %s (#%d) - %s", i+1, p.Name, p.ID, status)
	}
	resp := answer(b.String())
	resp.Data = map[string]any{"action": actionLowStock, "threshold": lowStockThreshold, "products": products}
	return resp, nil
}

func (a *InventoryAgent) adjust(ctx context.Context, req *agent.Request, id int64, name string, qty int, add bool) (*agent.Response, error) {
	if id > 0 {
		name = ""
	}
	p, resp, err := resolveOwned(ctx, a.resolver, req.UserID, id, name)
	if resp != nil || err != nil {
		return resp, err
	}

	stock, action := qty, actionSetStock
	if add {
		stock, action = p.Stock+qty, actionAddStock
	}
	if stock < 0 {
		return clarify("Số lượng tồn kho không thể âm."), nil
	}
	if err := a.products.UpdateStock(ctx, p.ID, stock); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to update stock of product %d: %w", p.ID, err))
	}
	publishProduct(a.publisher, p.ID)
	a.logger.Info("Product stock updated",
		"shop_id", req.UserID,
		"product_id", p.ID,
		"old_stock", p.Stock,
		"new_stock", stock,
	)

	resp = answer(fmt.Sprintf("Đã cập nhật tồn kho %s: %d → %d.", p.Name, p.Stock, stock))
	resp.Data = map[string]any{
		"action":     action,
		"product_id": p.ID,
		"old_stock":  p.Stock,
		"new_stock":  stock,
	}
	return resp, nil
}

// resolveOwned 解析商品并校验归属店铺；无法解析或不属于该店铺时返回追问
func resolveOwned(ctx context.Context, resolver *agents.ProductResolver, shopID, id int64, name string) (*catalog.Product, *agent.Response, error) {
	var (
		p   *catalog.Product
		err error
	)
	switch {
	case id > 0:
		p, err = resolver.ByID(ctx, id)
	case name != "":
		p, err = resolver.ByName(ctx, name)
	default:
		return nil, clarify("Bạn muốn thao tác với sản phẩm nào? Hãy cho mình tên hoặc mã sản phẩm (ví dụ #12)."), nil
	}
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		label := name
		if id > 0 {
			label = "#" + strconv.FormatInt(id, 10)
		}
		resp := clarify(fmt.Sprintf("Không tìm thấy sản phẩm %s trong cửa hàng của bạn.", label))
		resp.Kind = agent.KindNotFound
		return nil, resp, nil
	}
	if p.ShopID != shopID {
		return nil, clarify(fmt.Sprintf("Sản phẩm %s không thuộc cửa hàng của bạn.", p.Name)), nil
	}
	return p, nil, nil
}

// explicitID 文本中显式给出的商品编号
func explicitID(folded string) int64 {
	m := explicitIDRe.FindStringSubmatch(folded)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// targetPrice 取最后一个带单位或不小于 1000 的金额
func targetPrice(folded string) int64 {
	var price int64
	for _, m := range amountRe.FindAllStringSubmatch(folded, -1) {
		v, ok := intent.AmountFromParts(m[1], m[2])
		if !ok {
			continue
		}
		if m[2] != "" || v >= minPlausiblePrice {
			price = v
		}
	}
	return price
}

func publishProduct(publisher events.Publisher, id int64) {
	publisher.Publish(&events.EntityEvent{
		EventType: events.EntityUpserted,
		Kind:      events.EntityProduct,
		ID:        strconv.FormatInt(id, 10),
		EventTime: time.Now(),
	})
}

func containsAny(folded string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

func answer(content string) *agent.Response {
	return &agent.Response{Content: content, SourceAgent: agent.ShopManagement, Kind: agent.KindAnswer}
}

func clarify(content string) *agent.Response {
	return &agent.Response{Content: content, SourceAgent: agent.ShopManagement, Kind: agent.KindClarify}
}

// completeJSON 调用 LLM 并解析 JSON，失败返回 false
func completeJSON(ctx context.Context, completer llm.Completer, logger *slog.Logger, req *llm.Request, v any) bool {
	req.JSON = true
	content, err := completer.Complete(ctx, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("LLM call failed, using heuristics", "task", req.Task, "error", err)
		}
		return false
	}
	if !llm.ExtractJSON(content, v) {
		logger.Warn("LLM returned unparsable JSON, using heuristics", "task", req.Task)
		return false
	}
	return true
}
