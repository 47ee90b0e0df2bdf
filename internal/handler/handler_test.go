package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vielimo/service-booking/internal/adapter"
	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/internal/cache"
	bookingDomain "github.com/vielimo/service-booking/internal/domain/booking"
	"github.com/vielimo/service-booking/internal/domain/payment"
	"github.com/vielimo/service-booking/internal/handler"
	"github.com/vielimo/service-booking/internal/lock"
	"github.com/vielimo/service-booking/internal/ratelimit"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/domain"
	"github.com/vielimo/service-booking/pkg/kafka"
	"github.com/vielimo/service-booking/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// noBookings knows no booking at all.
type noBookings struct{}

func (noBookings) Save(context.Context, *bookingDomain.Booking) error    { return nil }
func (noBookings) Update(context.Context, *bookingDomain.Booking) error  { return nil }
func (noBookings) Reserve(context.Context, *bookingDomain.Booking) error { return nil }
func (noBookings) RecordPayment(context.Context, *bookingDomain.Booking, *payment.Transaction) error {
	return nil
}
func (noBookings) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return nil, domain.NewNotFoundError("Booking", id.String())
}
func (noBookings) FindByCode(_ context.Context, code string) (*bookingDomain.Booking, error) {
	return nil, domain.NewNotFoundError("Booking", code)
}
func (noBookings) List(context.Context, bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return nil, 0, nil
}
func (noBookings) CountOverlapping(context.Context, uuid.UUID, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (noBookings) GetStats(context.Context) (*bookingDomain.Stats, error) {
	return &bookingDomain.Stats{}, nil
}

type txnStore struct{ err error }

func (s txnStore) Exists(context.Context, string, string) (bool, error) { return false, s.err }
func (s txnStore) ListByBooking(context.Context, uuid.UUID) ([]*payment.Transaction, error) {
	return nil, s.err
}

type discardPublisher struct{}

func (discardPublisher) PublishEvent(context.Context, string, kafka.CloudEvent) error { return nil }

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func webhookRouter(txns payment.TransactionRepository) *gin.Engine {
	svc := application.NewWebhookService(noBookings{}, txns, discardPublisher{}, "hook-key", zap.NewNop())
	router := gin.New()
	handler.NewWebhookHandler(svc, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestWebhookHandler_StatusCodes(t *testing.T) {
	payload := map[string]interface{}{
		"id":             101,
		"transferType":   "in",
		"transferAmount": 500000,
		"content":        "VLABCD1234",
	}
	keyHeader := map[string]string{"Authorization": "Apikey hook-key"}

	t.Run("bad api key", func(t *testing.T) {
		w, body := doJSON(t, webhookRouter(txnStore{}), http.MethodPost, "/api/v1/webhooks/sepay", payload,
			map[string]string{"Authorization": "Apikey nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("malformed payload", func(t *testing.T) {
		w, _ := doJSON(t, webhookRouter(txnStore{}), http.MethodPost, "/api/v1/webhooks/sepay",
			map[string]interface{}{"content": "VLABCD1234"}, keyHeader)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("business rejection is acknowledged", func(t *testing.T) {
		w, body := doJSON(t, webhookRouter(txnStore{}), http.MethodPost, "/api/v1/webhooks/sepay", payload, keyHeader)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "not found")
	})

	t.Run("outgoing transfer", func(t *testing.T) {
		out := map[string]interface{}{"id": 102, "transferType": "out", "transferAmount": 1}
		w, body := doJSON(t, webhookRouter(txnStore{}), http.MethodPost, "/api/v1/webhooks/sepay", out, keyHeader)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
	})

	t.Run("storage failure asks for a retry", func(t *testing.T) {
		w, body := doJSON(t, webhookRouter(txnStore{err: errors.New("db down")}), http.MethodPost,
			"/api/v1/webhooks/sepay", payload, keyHeader)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", body["message"])
	})
}

type couponAPI struct {
	router *gin.Engine
	jwt    *auth.JWTManager
	sheet  *adapter.MockSheetAdapter
}

func newCouponAPI(t *testing.T) *couponAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop()
	sheet := adapter.NewMockSheetAdapter([][]interface{}{
		{"SAVE10", "percent", 10.0, 0.0, 0.0, 0.0},
	}, 2, logger)
	coupons := application.NewCouponService(sheet,
		cache.NewCacheManager(rdb, sheet, time.Minute, logger),
		lock.NewLocker(rdb, "coupon_lock:", 5*time.Second),
		ratelimit.NewLimiter(rdb, "coupon_rate:", 100, time.Minute),
		logger,
	)

	jwtManager := auth.NewJWTManager("access-secret", 15*time.Minute, time.Hour)
	nonces := auth.NewNonceManager("nonce-secret", time.Hour)

	router := gin.New()
	api := router.Group("/api/v1")
	handler.NewNonceHandler(nonces).RegisterRoutes(api, jwtManager)
	handler.NewCouponHandler(coupons, nonces).RegisterRoutes(api, jwtManager)
	handler.NewAdminHandler(nil, coupons, nonces).RegisterRoutes(api, jwtManager)

	return &couponAPI{router: router, jwt: jwtManager, sheet: sheet}
}

func (a *couponAPI) nonce(t *testing.T, action, bearer string) string {
	t.Helper()
	headers := map[string]string{}
	if bearer != "" {
		headers["Authorization"] = "Bearer " + bearer
	}
	w, body := doJSON(t, a.router, http.MethodGet, "/api/v1/nonce?action="+action, nil, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].(map[string]interface{})
	assert.Equal(t, middleware.NonceHeader, data["header"])
	return data["nonce"].(string)
}

func (a *couponAPI) token(t *testing.T, role string) string {
	t.Helper()
	token, err := a.jwt.GenerateAccessToken(uuid.New(), role+"@example.com", role)
	require.NoError(t, err)
	return token
}

func TestCouponHandler_RequiresNonce(t *testing.T) {
	api := newCouponAPI(t)
	body := map[string]interface{}{"code": "save10", "order_total": 200000}

	w, _ := doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/validate", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	wrongAction := api.nonce(t, auth.ActionApplyCoupon, "")
	w, _ = doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/validate", body,
		map[string]string{middleware.NonceHeader: wrongAction})
	assert.Equal(t, http.StatusForbidden, w.Code)

	nonce := api.nonce(t, auth.ActionValidateCoupon, "")
	w, resp := doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/validate", body,
		map[string]string{middleware.NonceHeader: nonce})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(20000), data["discount"])
	assert.Equal(t, float64(180000), data["final_total"])
}

func TestCouponHandler_NonceBoundToUser(t *testing.T) {
	api := newCouponAPI(t)
	body := map[string]interface{}{"code": "SAVE10", "order_total": 200000}

	// an anonymous nonce is not accepted from a signed-in customer
	anonymous := api.nonce(t, auth.ActionApplyCoupon, "")
	customer := api.token(t, auth.RoleCustomer)
	w, _ := doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/apply", body, map[string]string{
		middleware.NonceHeader: anonymous,
		"Authorization":        "Bearer " + customer,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	own := api.nonce(t, auth.ActionApplyCoupon, customer)
	w, resp := doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/apply", body, map[string]string{
		middleware.NonceHeader: own,
		"Authorization":        "Bearer " + customer,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), resp["data"].(map[string]interface{})["used_count"])
	assert.Equal(t, 1, api.sheet.Writes())
}

func TestCouponHandler_BadRequest(t *testing.T) {
	api := newCouponAPI(t)
	nonce := api.nonce(t, auth.ActionValidateCoupon, "")
	w, resp := doJSON(t, api.router, http.MethodPost, "/api/v1/coupons/validate",
		map[string]interface{}{"code": "SAVE10"}, map[string]string{middleware.NonceHeader: nonce})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", resp["error"].(map[string]interface{})["code"])
}

func TestNonceHandler_UnknownAction(t *testing.T) {
	api := newCouponAPI(t)
	w, _ := doJSON(t, api.router, http.MethodGet, "/api/v1/nonce?action=drop_tables", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_CouponCapabilities(t *testing.T) {
	api := newCouponAPI(t)

	w, _ := doJSON(t, api.router, http.MethodGet, "/api/v1/admin/coupons", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	manager := api.token(t, auth.RoleHotelManager)
	w, _ = doJSON(t, api.router, http.MethodGet, "/api/v1/admin/coupons", nil,
		map[string]string{"Authorization": "Bearer " + manager})
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := api.token(t, auth.RoleAdmin)
	bearer := map[string]string{"Authorization": "Bearer " + admin}
	w, resp := doJSON(t, api.router, http.MethodGet, "/api/v1/admin/coupons", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, resp["data"], 1)

	// refresh needs its own nonce on top of the token
	w, _ = doJSON(t, api.router, http.MethodPost, "/api/v1/admin/coupons/refresh-cache", nil, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	nonce := api.nonce(t, auth.ActionRefreshCache, admin)
	w, resp = doJSON(t, api.router, http.MethodPost, "/api/v1/admin/coupons/refresh-cache", nil, map[string]string{
		"Authorization":        "Bearer " + admin,
		middleware.NonceHeader: nonce,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), resp["data"].(map[string]interface{})["count"])

	w, _ = doJSON(t, api.router, http.MethodDelete, "/api/v1/admin/coupons/cache", nil, bearer)
	assert.Equal(t, http.StatusOK, w.Code)

	api.sheet.SetReadError(errors.New("quota exceeded"))
	nonce = api.nonce(t, auth.ActionTestConnection, admin)
	w, _ = doJSON(t, api.router, http.MethodPost, "/api/v1/admin/coupons/test-connection", nil, map[string]string{
		"Authorization":        "Bearer " + admin,
		middleware.NonceHeader: nonce,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
