package token

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Audience values keep admin bearer tokens and subscriber access cookies
// from being interchangeable even though both are signed with the same key.
const (
	audienceAdmin      = "admin"
	audienceSubscriber = "subscriber"
)

const defaultSecret = "membergate-secret-change-me"

var secret = []byte(defaultSecret)

// SetSecret configures the HMAC signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	UserID string `json:"uid"`
	jwtlib.RegisteredClaims
}

// SubscriberClaims is the payload of the signed subscriber token carried in
// the ck_subscriber_id cookie. It is visitor-controlled input: nothing in it
// is trusted until the signature verifies, and membership against the access
// rule is still re-checked on every request.
type SubscriberClaims struct {
	SubscriberID int64  `json:"sid"`
	Email        string `json:"email,omitempty"`
	jwtlib.RegisteredClaims
}

// SignAdmin creates a signed bearer token for an administrator.
func SignAdmin(userID string, ttl time.Duration) (string, error) {
	claims := AdminClaims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Audience:  jwtlib.ClaimStrings{audienceAdmin},
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAdmin validates an admin token string and returns the claims.
func ParseAdmin(tokenStr string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parseInto(tokenStr, claims, audienceAdmin); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// SignSubscriber mints the subscriber access token after a successful code
// exchange.
func SignSubscriber(subscriberID int64, email string, ttl time.Duration) (string, error) {
	claims := SubscriberClaims{
		SubscriberID: subscriberID,
		Email:        email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Audience:  jwtlib.ClaimStrings{audienceSubscriber},
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

// ParseSubscriber validates a subscriber token and returns the claims.
func ParseSubscriber(tokenStr string) (*SubscriberClaims, error) {
	claims := &SubscriberClaims{}
	if err := parseInto(tokenStr, claims, audienceSubscriber); err != nil {
		return nil, err
	}
	if claims.SubscriberID <= 0 {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func parseInto(tokenStr string, claims jwtlib.Claims, audience string) error {
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwtlib.WithAudience(audience))
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
