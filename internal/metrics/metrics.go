package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CouponCacheLookups counts snapshot reads by outcome (hit, miss, stale).
	CouponCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_cache_lookups_total",
			Help: "Coupon snapshot cache lookups by result",
		},
		[]string{"result"},
	)

	// CouponCacheRefreshes counts refresh attempts by outcome (success, failure, stale_fallback).
	CouponCacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_cache_refreshes_total",
			Help: "Coupon snapshot refreshes from the sheet by result",
		},
		[]string{"result"},
	)

	// CouponApplyDuration tracks the latency of the apply protocol.
	CouponApplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "coupon_apply_duration_seconds",
			Help: "Duration of coupon apply requests in seconds",
			Buckets: []float64{
				0.01, // 10ms
				0.05, // 50ms
				0.1,  // 100ms
				0.25, // 250ms
				0.5,  // 500ms
				1.0,  // 1s
				2.5,  // 2.5s
				5.0,  // 5s
				10.0, // 10s
			},
		},
		[]string{"status"}, // success, invalid, contended, upstream
	)

	// CouponValidations counts validate calls by outcome.
	CouponValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_validations_total",
			Help: "Coupon validations by result",
		},
		[]string{"result"},
	)

	// PaymentWebhooks counts webhook deliveries by reconciliation outcome.
	PaymentWebhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordApplyDuration records the duration of a coupon apply attempt.
func RecordApplyDuration(status string, seconds float64) {
	CouponApplyDuration.WithLabelValues(status).Observe(seconds)
}
