package retrieval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// ProductPoint 商品向量点（向量由调用方填充）
func ProductPoint(p *catalog.Product) vector.Point {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", p.Name)
	if p.BrandName != "" {
		fmt.Fprintf(&b, "Brand: %s\n", p.BrandName)
	}
	if p.CategoryName != "" {
		fmt.Fprintf(&b, "Category: %s\n", p.CategoryName)
	}
	fmt.Fprintf(&b, "Price: %s\n", catalog.FormatPrice(p.Price))
	if p.ShortDescription != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.ShortDescription)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if len(p.Specifications) > 0 {
		specs := make([]string, 0, len(p.Specifications))
		for _, k := range p.SpecKeys() {
			specs = append(specs, k+": "+p.Specifications[k])
		}
		fmt.Fprintf(&b, "Specifications: %s\n", strings.Join(specs, "; "))
	}
	fmt.Fprintf(&b, "Rating: %.1f/5 (%d reviews)", p.RatingAverage, p.ReviewCount)

	return vector.Point{
		ID: strconv.FormatInt(p.ID, 10),
		Payload: map[string]any{
			vector.PayloadName:             p.Name,
			vector.PayloadPrice:            p.Price,
			vector.PayloadShortDescription: p.ShortDescription,
			vector.PayloadRatingAverage:    p.RatingAverage,
			vector.PayloadCategoryID:       p.CategoryID,
			vector.PayloadCategoryName:     p.CategoryName,
			vector.PayloadBrandID:          p.BrandID,
			vector.PayloadBrandName:        p.BrandName,
			vector.PayloadSellerID:         p.ShopID,
			vector.PayloadStock:            p.Stock,
			vector.PayloadSoldCount:        p.SoldCount,
			vector.PayloadCreatedAt:        p.CreatedAt.Unix(),
			vector.PayloadTextContent:      b.String(),
		},
	}
}

// CategoryPoint 分类向量点，ID 为分类路径
func CategoryPoint(c *catalog.Category) vector.Point {
	text := "Category: " + c.Name
	if c.Description != "" {
		text += "\nDescription: " + c.Description
	}
	return vector.Point{
		ID: c.ID,
		Payload: map[string]any{
			vector.PayloadName:        c.Name,
			vector.PayloadCategoryID:  c.ID,
			vector.PayloadTextContent: text,
		},
	}
}

// FAQPoint 常见问题向量点
func FAQPoint(f *catalog.FAQ) vector.Point {
	payload := map[string]any{
		vector.PayloadQuestion:    f.Question,
		vector.PayloadAnswer:      f.Answer,
		vector.PayloadTopic:       f.Category,
		vector.PayloadTextContent: "Question: " + f.Question + "\nAnswer: " + f.Answer,
	}
	if f.ShopID != nil {
		payload[vector.PayloadSellerID] = *f.ShopID
	}
	return vector.Point{ID: strconv.FormatInt(f.ID, 10), Payload: payload}
}

// ReviewPoint 评价向量点
func ReviewPoint(r *catalog.Review) vector.Point {
	return vector.Point{
		ID: strconv.FormatInt(r.ID, 10),
		Payload: map[string]any{
			vector.PayloadProductID:   r.ProductID,
			vector.PayloadRating:      r.Rating,
			vector.PayloadTextContent: fmt.Sprintf("Rating: %d/5\nReview: %s", r.Rating, r.Comment),
		},
	}
}

// ChatPoint 会话记录向量点，只收录人工与助手的发言
func ChatPoint(c *chat.Chat, messages []*chat.Message) (vector.Point, bool) {
	var b strings.Builder
	for _, m := range messages {
		if m.SenderKind == chat.SenderSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", m.SenderKind, m.Content)
	}
	if b.Len() == 0 {
		return vector.Point{}, false
	}

	payload := map[string]any{
		vector.PayloadChatID:      c.ID,
		vector.PayloadTextContent: b.String(),
		vector.PayloadCreatedAt:   c.CreatedAt.Unix(),
	}
	if c.ShopID != nil {
		payload[vector.PayloadSellerID] = *c.ShopID
	}
	return vector.Point{ID: c.ID, Payload: payload}, true
}

// SearchLogPoint 搜索记录向量点
func SearchLogPoint(l *catalog.SearchLog) vector.Point {
	return vector.Point{
		ID: strconv.FormatInt(l.ID, 10),
		Payload: map[string]any{
			vector.PayloadQuery:       l.Query,
			vector.PayloadTextContent: "Search: " + l.Query,
			vector.PayloadCreatedAt:   l.CreatedAt.Unix(),
		},
	}
}
