package catalog

import "errors"

var (
	// ErrProductNotFound 商品不存在
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound 顾客不存在
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCouponExists 优惠码已存在
	ErrCouponExists = errors.New("coupon code already exists")
)
