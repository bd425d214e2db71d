package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the claims minted for API access tokens.
type JWTClaims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}

// TokenService mints and validates HMAC-signed access tokens. Tokens are
// stateless: there is no revocation list, only expiry.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
}

// NewTokenService creates a token service using the given signing secret.
func NewTokenService(secretKey string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secretKey: []byte(secretKey), ttl: ttl}
}

// CreateAccessToken mints a signed token identifying the given subject.
func (ts *TokenService) CreateAccessToken(subject string) (string, error) {
	if len(ts.secretKey) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}

	now := time.Now()
	claims := &JWTClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
			Issuer:    "changesmith",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secretKey)
}

// ValidateAccessToken parses and verifies a token, returning its subject.
func (ts *TokenService) ValidateAccessToken(tokenString string) (string, error) {
	if len(ts.secretKey) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}
