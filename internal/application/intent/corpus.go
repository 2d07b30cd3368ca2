package intent

import (
	"math/rand"
	"strings"

	domainIntent "github.com/shopmind/backend/internal/domain/intent"
)

// corpusSeed 固定随机种子，保证同一版本生成的语料一致
const corpusSeed = 20240601

// variantsPerLabel 每个意图生成的样本数
const variantsPerLabel = 70

// StopWords 意图分类的停用词（语气词与称呼）
var StopWords = []string{"ạ", "à", "ơi", "nhé", "nha", "thì", "mà", "là", "ad", "xin", "vậy", "hả"}

// seedTemplates 每个意图的种子句式，花括号为槽位
var seedTemplates = map[domainIntent.Label][]string{
	domainIntent.ProductSearch: {
		"tìm {category} {brand}",
		"tìm {category} {brand} dưới {price}",
		"có {category} nào dưới {price} không",
		"mình muốn mua {category}",
		"cho mình xem các mẫu {category} {brand}",
		"{category} giá rẻ",
		"tìm giúp {category} khoảng {price}",
		"search {category} {brand}",
		"shop có bán {category} không",
		"liệt kê {category} {brand} từ {price} đến {price2}",
	},
	domainIntent.ProductInfo: {
		"thông số của {product}",
		"{product} có mấy màu",
		"{product} còn hàng không",
		"cho mình xem chi tiết {product}",
		"{product} pin bao nhiêu mah",
		"cấu hình {product} thế nào",
		"{product} giá bao nhiêu",
		"{product} ram bao nhiêu",
		"mô tả sản phẩm {product}",
		"{product} có chống nước không",
	},
	domainIntent.Recommendation: {
		"gợi ý cho mình {category} phù hợp",
		"nên mua {category} nào",
		"tư vấn giúp mình {category} tầm {price}",
		"có sản phẩm nào tương tự {product} không",
		"recommend {category} cho sinh viên",
		"sản phẩm nào đang hot",
		"mua gì làm quà tặng",
		"đề xuất {category} hợp với mình",
		"gợi ý sản phẩm giống {product}",
		"top {category} bán chạy",
		"gợi ý cho tôi {category}",
		"gợi ý cho tôi {category} {brand}",
		"gợi ý giúp tôi {category} tầm {price}",
		"tư vấn giúp tôi {category}",
		"tư vấn giúp {category} dưới {price}",
		"tư vấn cho tôi nên mua {category} nào",
		"tôi nên mua {category} {brand} nào",
	},
	domainIntent.CompareProducts: {
		"so sánh {product} và {product2}",
		"{product} với {product2} cái nào tốt hơn",
		"nên chọn {product} hay {product2}",
		"khác nhau giữa {product} và {product2}",
		"compare {product} vs {product2}",
		"{product} hơn {product2} điểm gì",
		"so sánh giá {product} với {product2}",
		"đặt {product} cạnh {product2} thì sao",
	},
	domainIntent.ReviewInquiry: {
		"đánh giá {product} thế nào",
		"{product} có tốt không",
		"review {product}",
		"người dùng nói gì về {product}",
		"{product} được mấy sao",
		"nhận xét về {product}",
		"khách mua {product} có hài lòng không",
		"feedback {product}",
	},
	domainIntent.UserProfile: {
		"cập nhật địa chỉ của tôi",
		"đổi số điện thoại trong tài khoản",
		"xem thông tin tài khoản",
		"thay đổi email của mình",
		"hồ sơ của tôi",
		"cập nhật sở thích {category}",
		"tôi thích {brand} lưu lại giúp",
		"đổi tên tài khoản",
		"sở thích mua sắm của tôi là gì",
		"sửa địa chỉ giao hàng mặc định",
	},
	domainIntent.PolicyQuestion: {
		"chính sách bảo hành thế nào",
		"bảo hành bao lâu",
		"đổi trả trong bao nhiêu ngày",
		"phí vận chuyển bao nhiêu",
		"có được hoàn tiền không",
		"chính sách đổi trả",
		"thanh toán bằng những hình thức nào",
		"giao hàng mất mấy ngày",
		"{category} có được bảo hành không",
		"quy định trả hàng",
	},
	domainIntent.CartManagement: {
		"thêm {product} vào giỏ hàng",
		"xóa {product} khỏi giỏ",
		"xem giỏ hàng",
		"giỏ hàng của tôi có gì",
		"tăng số lượng {product} trong giỏ",
		"bỏ hết sản phẩm trong giỏ hàng",
		"cho {product} vào giỏ",
		"giỏ hàng đang có bao nhiêu món",
	},
	domainIntent.OrderTracking: {
		"đơn hàng của tôi đang ở đâu",
		"kiểm tra trạng thái đơn hàng",
		"khi nào đơn hàng được giao",
		"tra cứu đơn {order}",
		"đơn {order} giao chưa",
		"hủy đơn hàng {order}",
		"theo dõi vận đơn {order}",
		"lịch sử đơn hàng của tôi",
	},
	domainIntent.GeneralInquiry: {
		"xin chào",
		"chào shop",
		"bạn là ai",
		"cảm ơn",
		"shop mở cửa mấy giờ",
		"bạn có thể làm gì",
		"hello",
		"tạm biệt",
		"hôm nay thế nào",
		"shop ở đâu",
	},
	domainIntent.SupportRequest: {
		"tôi cần hỗ trợ",
		"sản phẩm bị lỗi",
		"tôi muốn khiếu nại",
		"liên hệ nhân viên tư vấn",
		"hàng giao bị hỏng",
		"gặp người thật giúp tôi",
		"tôi không đăng nhập được",
		"{product} mua về không lên nguồn",
		"báo lỗi thanh toán",
	},
}

// slotValues 槽位取值
var slotValues = map[string][]string{
	"category": {"điện thoại", "laptop", "tai nghe", "máy tính bảng", "đồng hồ thông minh", "áo thun", "giày thể thao", "tủ lạnh"},
	"brand":    {"Samsung", "Apple", "Xiaomi", "Oppo", "Dell", "Asus", "Sony", "Nike", ""},
	"product":  {"iPhone 13", "Galaxy S22", "Redmi Note 13", "MacBook Air", "Dell XPS 13", "AirPods Pro", "Galaxy Tab S9", "Apple Watch"},
	"price":    {"5 triệu", "10 triệu", "500k", "2tr", "15 triệu", "1 triệu", "300 nghìn"},
	"order":    {"#1234", "5678", "mã 9012", "DH001"},
}

// 前后缀语气词，用于生成口语化变体
var (
	fillerPrefixes = []string{"", "", "shop ơi", "cho mình hỏi", "bạn ơi", "ad ơi", "xin hỏi", "mình hỏi chút"}
	fillerSuffixes = []string{"", "", "ạ", "nhé", "với", "giúp mình", "được không", "nha"}
)

// SyntheticCorpus 由种子句式、槽位替换与语气词注入生成训练语料
// 返回的文档与标签一一对应，结果确定
func SyntheticCorpus() ([]string, []domainIntent.Label) {
	rng := rand.New(rand.NewSource(corpusSeed))

	var (
		docs   []string
		labels []domainIntent.Label
	)
	for _, label := range domainIntent.Labels {
		templates := seedTemplates[label]
		seen := make(map[string]struct{})

		// 每个句式至少出现一次
		for _, tpl := range templates {
			doc := fill(tpl, rng)
			if _, dup := seen[doc]; dup {
				continue
			}
			seen[doc] = struct{}{}
			docs = append(docs, doc)
			labels = append(labels, label)
		}
		for attempts := 0; len(seen) < variantsPerLabel && attempts < variantsPerLabel*10; attempts++ {
			tpl := templates[rng.Intn(len(templates))]
			doc := strings.TrimSpace(pick(fillerPrefixes, rng) + " " + fill(tpl, rng) + " " + pick(fillerSuffixes, rng))
			if _, dup := seen[doc]; dup {
				continue
			}
			seen[doc] = struct{}{}
			docs = append(docs, doc)
			labels = append(labels, label)
		}
	}
	return docs, labels
}

// fill 替换句式中的槽位，{product2} 与 {price2} 保证不同于 {product} 与 {price}
func fill(tpl string, rng *rand.Rand) string {
	out := tpl
	for _, slot := range []string{"category", "brand", "product", "price", "order"} {
		values := slotValues[slot]
		first := rng.Intn(len(values))
		out = strings.ReplaceAll(out, "{"+slot+"}", values[first])

		second := "{" + slot + "2}"
		if strings.Contains(out, second) {
			next := (first + 1 + rng.Intn(len(values)-1)) % len(values)
			out = strings.ReplaceAll(out, second, values[next])
		}
	}
	return strings.Join(strings.Fields(out), " ")
}

func pick(values []string, rng *rand.Rand) string {
	return values[rng.Intn(len(values))]
}
