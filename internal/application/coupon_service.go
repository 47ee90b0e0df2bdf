package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vielimo/service-booking/internal/adapter"
	"github.com/vielimo/service-booking/internal/cache"
	couponDomain "github.com/vielimo/service-booking/internal/domain/coupon"
	"github.com/vielimo/service-booking/internal/lock"
	"github.com/vielimo/service-booking/internal/metrics"
	"github.com/vielimo/service-booking/internal/ratelimit"
	"github.com/vielimo/service-booking/pkg/domain"
)

// ValidateCouponRequest holds data to validate a coupon.
type ValidateCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	OrderTotal int64  `json:"order_total" binding:"required,gt=0"`
}

// ApplyCouponRequest holds data to redeem a coupon.
type ApplyCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	OrderTotal int64  `json:"order_total" binding:"required,gt=0"`
}

// CouponValidationDTO is the result of validating a coupon. Nothing is persisted.
type CouponValidationDTO struct {
	Valid         bool    `json:"valid"`
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type,omitempty"`
	DiscountValue float64 `json:"discount_value,omitempty"`
	Discount      int64   `json:"discount"`
	FinalTotal    int64   `json:"final_total"`
	Message       string  `json:"message,omitempty"`
}

// CouponRedemptionDTO is the result of a successful redemption.
type CouponRedemptionDTO struct {
	Code          string `json:"code"`
	Discount      int64  `json:"discount"`
	FinalTotal    int64  `json:"final_total"`
	UsedCount     int    `json:"used_count"`
	RemainingUses int    `json:"remaining_uses"`
}

// CouponDTO is the admin representation of a coupon row.
type CouponDTO struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
	MinOrder      int64   `json:"min_order"`
	MaxUsage      int     `json:"max_usage"`
	UsedCount     int     `json:"used_count"`
	RemainingUses int     `json:"remaining_uses"`
	RowIndex      int     `json:"row_index"`
}

// CacheRefreshDTO is returned by the admin refresh action.
type CacheRefreshDTO struct {
	Count  int          `json:"count"`
	Status cache.Status `json:"status"`
}

// CouponService validates coupons from the cached snapshot and redeems them against the sheet.
type CouponService struct {
	source  adapter.SheetAdapter
	cache   *cache.CacheManager
	locker  *lock.Locker
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewCouponService creates a new CouponService.
func NewCouponService(
	source adapter.SheetAdapter,
	cacheManager *cache.CacheManager,
	locker *lock.Locker,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
) *CouponService {
	return &CouponService{
		source:  source,
		cache:   cacheManager,
		locker:  locker,
		limiter: limiter,
		logger:  logger,
	}
}

// ValidateCoupon checks a coupon against the cached snapshot and calculates the discount.
// Business rule failures come back as Valid=false, not as errors.
func (s *CouponService) ValidateCoupon(ctx context.Context, clientIP string, req ValidateCouponRequest) (*CouponValidationDTO, error) {
	code := couponDomain.SanitizeCode(req.Code)
	if code == "" {
		metrics.CouponValidations.WithLabelValues("invalid").Inc()
		return &CouponValidationDTO{Valid: false, Message: couponMessage(couponDomain.ErrInvalidCode)}, nil
	}

	if err := s.checkRateLimit(ctx, clientIP); err != nil {
		metrics.CouponValidations.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	set, err := s.cache.Get(ctx, false)
	if err != nil {
		metrics.CouponValidations.WithLabelValues("upstream").Inc()
		s.logger.Error("coupon snapshot unavailable", zap.Error(err))
		return nil, domain.NewUpstreamError("coupons are temporarily unavailable, please try again later", err)
	}

	c, ok := set.Get(code)
	if !ok {
		metrics.CouponValidations.WithLabelValues("invalid").Inc()
		return &CouponValidationDTO{Valid: false, Code: code, Message: couponMessage(couponDomain.ErrNotFound)}, nil
	}

	if err := c.CheckEligibility(req.OrderTotal); err != nil {
		metrics.CouponValidations.WithLabelValues("invalid").Inc()
		return &CouponValidationDTO{Valid: false, Code: code, Message: couponMessage(err)}, nil
	}

	discount := c.CalculateDiscount(req.OrderTotal)
	metrics.CouponValidations.WithLabelValues("valid").Inc()
	return &CouponValidationDTO{
		Valid:         true,
		Code:          code,
		DiscountType:  string(c.DiscountType()),
		DiscountValue: c.DiscountValue(),
		Discount:      discount,
		FinalTotal:    req.OrderTotal - discount,
	}, nil
}

// ApplyCoupon rate-limits the caller and redeems the coupon.
func (s *CouponService) ApplyCoupon(ctx context.Context, clientIP string, req ApplyCouponRequest) (*CouponRedemptionDTO, error) {
	if err := s.checkRateLimit(ctx, clientIP); err != nil {
		return nil, err
	}
	return s.Redeem(ctx, req.Code, req.OrderTotal)
}

// RedeemForBooking rate-limits the caller, redeems the coupon and returns the discount.
// It lets the checkout saga redeem without depending on this package.
func (s *CouponService) RedeemForBooking(ctx context.Context, clientIP, code string, orderTotal int64) (int64, error) {
	res, err := s.ApplyCoupon(ctx, clientIP, ApplyCouponRequest{Code: code, OrderTotal: orderTotal})
	if err != nil {
		return 0, err
	}
	return res.Discount, nil
}

// Redeem consumes one use of a coupon. It holds the per-code lock while it re-reads the
// sheet, re-checks the rules against that fresh row and writes the new usage count back.
// The sheet has no compare-and-swap, so the lock is the only guard against over-redemption.
func (s *CouponService) Redeem(ctx context.Context, rawCode string, orderTotal int64) (*CouponRedemptionDTO, error) {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.RecordApplyDuration(status, time.Since(start).Seconds())
	}()

	code := couponDomain.SanitizeCode(rawCode)
	if code == "" {
		status = "invalid"
		return nil, domain.NewValidationError(couponMessage(couponDomain.ErrInvalidCode))
	}

	held, err := s.locker.TryAcquire(ctx, code)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			status = "contended"
			s.logger.Info("coupon apply contended", zap.String("code", code))
			return nil, domain.NewConflictError("this coupon is being applied right now, please try again in a few seconds")
		}
		status = "upstream"
		return nil, domain.NewUpstreamError("could not apply coupon, please try again", err)
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := held.Release(ctx); err != nil {
			s.logger.Warn("failed to release coupon lock", zap.String("code", code), zap.Error(err))
		}
	}
	defer release()

	fresh, err := s.source.FetchAll(ctx)
	if err != nil {
		status = "upstream"
		s.logger.Error("fresh coupon read failed", zap.String("code", code), zap.Error(err))
		return nil, domain.NewUpstreamError("could not verify coupon, please try again", err)
	}

	c, ok := fresh.Get(code)
	if !ok {
		status = "invalid"
		return nil, domain.NewValidationError(couponMessage(couponDomain.ErrNotFound))
	}
	if err := c.CheckEligibility(orderTotal); err != nil {
		status = "invalid"
		return nil, domain.NewValidationError(couponMessage(err))
	}

	discount := c.CalculateDiscount(orderTotal)
	usedCount, err := c.Redeem()
	if err != nil {
		status = "invalid"
		return nil, domain.NewValidationError(couponMessage(err))
	}

	if err := s.source.UpdateUsedCount(ctx, c.RowIndex(), usedCount); err != nil {
		status = "upstream"
		s.logger.Error("failed to write coupon usage",
			zap.String("code", code),
			zap.Int("row", c.RowIndex()),
			zap.Error(err),
		)
		return nil, domain.NewUpstreamError("could not apply coupon, please try again", err)
	}

	release()
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate coupon cache after redemption", zap.Error(err))
	}

	s.logger.Info("coupon redeemed",
		zap.String("code", code),
		zap.Int64("order_total", orderTotal),
		zap.Int64("discount", discount),
		zap.Int("used_count", usedCount),
	)
	return &CouponRedemptionDTO{
		Code:          code,
		Discount:      discount,
		FinalTotal:    orderTotal - discount,
		UsedCount:     usedCount,
		RemainingUses: c.RemainingUses(),
	}, nil
}

// ListCoupons returns the coupons from the snapshot (admin).
func (s *CouponService) ListCoupons(ctx context.Context, forceRefresh bool) ([]CouponDTO, error) {
	set, err := s.cache.Get(ctx, forceRefresh)
	if err != nil {
		return nil, domain.NewUpstreamError("coupons are temporarily unavailable", err)
	}
	items := set.All()
	dtos := make([]CouponDTO, len(items))
	for i, c := range items {
		dtos[i] = toCouponDTO(c)
	}
	return dtos, nil
}

// RefreshCache refetches the snapshot now (admin).
func (s *CouponService) RefreshCache(ctx context.Context) (*CacheRefreshDTO, error) {
	set, err := s.cache.Refresh(ctx)
	if err != nil {
		return nil, domain.NewUpstreamError("failed to refresh coupons from the sheet", err)
	}
	status, err := s.cache.Status(ctx)
	if err != nil {
		s.logger.Warn("failed to read cache status", zap.Error(err))
	}
	s.logger.Info("coupon cache refreshed by admin", zap.Int("count", set.Len()))
	return &CacheRefreshDTO{Count: set.Len(), Status: status}, nil
}

// ClearCache drops the snapshot (admin).
func (s *CouponService) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear coupon cache: %w", err)
	}
	return nil
}

// CacheStatus describes the cached snapshot (admin).
func (s *CouponService) CacheStatus(ctx context.Context) (cache.Status, error) {
	return s.cache.Status(ctx)
}

// TestConnection checks that the sheet is reachable and returns its title (admin).
func (s *CouponService) TestConnection(ctx context.Context) (string, error) {
	title, err := s.source.TestConnection(ctx)
	if err != nil {
		s.logger.Warn("coupon sheet connection test failed", zap.Error(err))
		return "", domain.NewUpstreamError("could not connect to the coupon sheet: "+err.Error(), err)
	}
	return title, nil
}

func (s *CouponService) checkRateLimit(ctx context.Context, clientIP string) error {
	if s.limiter == nil || clientIP == "" {
		return nil
	}
	res, err := s.limiter.Hit(ctx, clientIP)
	if err != nil {
		// the limiter is advisory; a Redis hiccup must not block checkout
		s.logger.Warn("coupon rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return domain.NewRateLimitedError(fmt.Sprintf("too many coupon attempts, try again in %d seconds", int(res.RetryAfter.Seconds())+1))
	}
	return nil
}

func couponMessage(err error) string {
	switch {
	case errors.Is(err, couponDomain.ErrInvalidCode):
		return "please enter a coupon code"
	case errors.Is(err, couponDomain.ErrNotFound):
		return "coupon code does not exist"
	case errors.Is(err, couponDomain.ErrUsageExhausted):
		return "coupon has been fully used"
	case errors.Is(err, couponDomain.ErrMinOrderNotMet):
		return err.Error()
	case errors.Is(err, couponDomain.ErrInvalidOrderSum):
		return "order total must be positive"
	default:
		return "coupon is not valid"
	}
}

func toCouponDTO(c *couponDomain.Coupon) CouponDTO {
	return CouponDTO{
		Code:          c.Code(),
		DiscountType:  string(c.DiscountType()),
		DiscountValue: c.DiscountValue(),
		MinOrder:      c.MinOrder(),
		MaxUsage:      c.MaxUsage(),
		UsedCount:     c.UsedCount(),
		RemainingUses: c.RemainingUses(),
		RowIndex:      c.RowIndex(),
	}
}
