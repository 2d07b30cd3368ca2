// Package intent 意图标签、实体与路由决策
package intent

// Label 意图标签（封闭集合）
type Label string

const (
	ProductSearch   Label = "product_search"
	ProductInfo     Label = "product_info"
	Recommendation  Label = "recommendation"
	CompareProducts Label = "compare_products"
	ReviewInquiry   Label = "review_inquiry"
	UserProfile     Label = "user_profile"
	PolicyQuestion  Label = "policy_question"
	CartManagement  Label = "cart_management"
	OrderTracking   Label = "order_tracking"
	GeneralInquiry  Label = "general_inquiry"
	SupportRequest  Label = "support_request"
)

// Labels 全部意图标签，顺序即模型的类别下标
var Labels = []Label{
	ProductSearch,
	ProductInfo,
	Recommendation,
	CompareProducts,
	ReviewInquiry,
	UserProfile,
	PolicyQuestion,
	CartManagement,
	OrderTracking,
	GeneralInquiry,
	SupportRequest,
}

// ShopManagement 店主消息走店铺调度时记录的意图
const ShopManagement Label = "shop_management"

// Valid 是否属于封闭集合
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLabel 解析标签，未知返回 false
func ParseLabel(s string) (Label, bool) {
	l := Label(s)
	return l, l.Valid()
}

// Prediction 意图预测结果，不单独持久化，只写入消息元数据
type Prediction struct {
	Label         Label             `json:"label"`
	Confidence    float64           `json:"confidence"`
	Probabilities map[Label]float64 `json:"probabilities,omitempty"`
}

// FallbackPrediction 推理失败时的默认预测
func FallbackPrediction() *Prediction {
	return &Prediction{
		Label:         GeneralInquiry,
		Confidence:    0.5,
		Probabilities: map[Label]float64{},
	}
}

// RoutingDecision 路由决策，随助手消息元数据持久化
type RoutingDecision struct {
	Intent      Label    `json:"intent"`
	TargetAgent string   `json:"target_agent"`
	Entities    Entities `json:"entities"`
	Confidence  float64  `json:"confidence"`
	// Source 决策来源：llm、ml_fallback、confirmation、shop_keywords
	Source string `json:"source"`
}
