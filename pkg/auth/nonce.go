package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actions protected by an anti-forgery nonce.
const (
	ActionValidateCoupon = "validate_coupon"
	ActionApplyCoupon    = "apply_coupon"
	ActionCreateBooking  = "create_booking"
	ActionRefreshCache   = "refresh_cache"
	ActionTestConnection = "test_connection"
)

var knownActions = map[string]bool{
	ActionValidateCoupon: true,
	ActionApplyCoupon:    true,
	ActionCreateBooking:  true,
	ActionRefreshCache:   true,
	ActionTestConnection: true,
}

// ErrInvalidNonce is returned for missing, expired, forged or mismatched nonces.
var ErrInvalidNonce = errors.New("invalid or expired nonce")

type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// NonceManager issues per-action anti-forgery tokens. A nonce is bound to an action
// and, for authenticated callers, to the subject it was issued to.
type NonceManager struct {
	secret []byte
	ttl    time.Duration
}

// NewNonceManager creates a NonceManager. The secret must differ from the access token secret.
func NewNonceManager(secret string, ttl time.Duration) *NonceManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &NonceManager{secret: []byte(secret), ttl: ttl}
}

// IsKnownAction reports whether action may be issued a nonce.
func IsKnownAction(action string) bool {
	return knownActions[action]
}

// Issue creates a nonce for action and subject (empty for anonymous callers).
func (m *NonceManager) Issue(action, subject string) (string, time.Time, error) {
	if !IsKnownAction(action) {
		return "", time.Time{}, fmt.Errorf("unknown nonce action %q", action)
	}
	now := time.Now()
	expires := now.Add(m.ttl)
	claims := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify checks that nonce was issued for action and subject and has not expired.
func (m *NonceManager) Verify(nonce, action, subject string) error {
	if nonce == "" {
		return ErrInvalidNonce
	}
	claims := &nonceClaims{}
	token, err := jwt.ParseWithClaims(nonce, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ErrInvalidNonce
	}
	if claims.Action != action || claims.Subject != subject {
		return ErrInvalidNonce
	}
	return nil
}
