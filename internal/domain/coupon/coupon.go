package coupon

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DiscountType represents the type of discount.
type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

// Business rule failures. All of them are user facing and not retryable.
var (
	ErrInvalidCode     = errors.New("coupon code is required")
	ErrNotFound        = errors.New("coupon code does not exist")
	ErrUsageExhausted  = errors.New("coupon has reached its usage limit")
	ErrMinOrderNotMet  = errors.New("order total is below the coupon minimum")
	ErrInvalidOrderSum = errors.New("order total must be positive")
)

// ParseDiscountType maps a free-form sheet value onto a DiscountType; anything unknown is fixed.
func ParseDiscountType(s string) DiscountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "percentage", "%":
		return DiscountTypePercent
	default:
		return DiscountTypeFixed
	}
}

// SanitizeCode uppercases s and strips everything outside [A-Z0-9_-].
func SanitizeCode(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Coupon is one discount code as recorded in the coupon sheet.
type Coupon struct {
	code          string
	discountType  DiscountType
	discountValue float64
	minOrder      int64
	maxUsage      int
	usedCount     int
	rowIndex      int
}

// Reconstruct rebuilds a Coupon from a source row. Negative numbers are clamped to zero.
func Reconstruct(code string, discountType DiscountType, discountValue float64, minOrder int64, maxUsage, usedCount, rowIndex int) *Coupon {
	if discountValue < 0 || math.IsNaN(discountValue) {
		discountValue = 0
	}
	if discountType == DiscountTypePercent && discountValue > 100 {
		discountValue = 100
	}
	if minOrder < 0 {
		minOrder = 0
	}
	if maxUsage < 0 {
		maxUsage = 0
	}
	if usedCount < 0 {
		usedCount = 0
	}
	return &Coupon{
		code:          SanitizeCode(code),
		discountType:  discountType,
		discountValue: discountValue,
		minOrder:      minOrder,
		maxUsage:      maxUsage,
		usedCount:     usedCount,
		rowIndex:      rowIndex,
	}
}

// HasRemainingUses reports whether another redemption is allowed. maxUsage 0 is unlimited.
func (c *Coupon) HasRemainingUses() bool {
	return c.maxUsage == 0 || c.usedCount < c.maxUsage
}

// RemainingUses returns the redemptions left, or -1 when unlimited.
func (c *Coupon) RemainingUses() int {
	if c.maxUsage == 0 {
		return -1
	}
	if c.usedCount >= c.maxUsage {
		return 0
	}
	return c.maxUsage - c.usedCount
}

// CheckEligibility applies the usage and minimum order rules for orderTotal.
func (c *Coupon) CheckEligibility(orderTotal int64) error {
	if orderTotal <= 0 {
		return ErrInvalidOrderSum
	}
	if !c.HasRemainingUses() {
		return ErrUsageExhausted
	}
	if c.minOrder > 0 && orderTotal < c.minOrder {
		return fmt.Errorf("%w: minimum is %d", ErrMinOrderNotMet, c.minOrder)
	}
	return nil
}

// CalculateDiscount returns the discount for orderTotal, never more than orderTotal.
func (c *Coupon) CalculateDiscount(orderTotal int64) int64 {
	if orderTotal <= 0 {
		return 0
	}

	var discount int64
	switch c.discountType {
	case DiscountTypePercent:
		discount = int64(math.Round(float64(orderTotal) * c.discountValue / 100))
	default:
		discount = int64(math.Round(c.discountValue))
	}

	if discount < 0 {
		discount = 0
	}
	if discount > orderTotal {
		discount = orderTotal
	}
	return discount
}

// Redeem returns the usage count after one more redemption, or ErrUsageExhausted.
func (c *Coupon) Redeem() (int, error) {
	if !c.HasRemainingUses() {
		return c.usedCount, ErrUsageExhausted
	}
	c.usedCount++
	return c.usedCount, nil
}

// Getters.
func (c *Coupon) Code() string               { return c.code }
func (c *Coupon) DiscountType() DiscountType { return c.discountType }
func (c *Coupon) DiscountValue() float64     { return c.discountValue }
func (c *Coupon) MinOrder() int64            { return c.minOrder }
func (c *Coupon) MaxUsage() int              { return c.maxUsage }
func (c *Coupon) UsedCount() int             { return c.usedCount }
func (c *Coupon) RowIndex() int              { return c.rowIndex }
