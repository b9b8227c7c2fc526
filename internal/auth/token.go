// Package auth reads the caller's identity from the signed JWT the DMP
// Tool web app issues.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in Claims.Role
const (
	RoleResearcher = "RESEARCHER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
)

// Claims is the caller identity. DMPIDs lists the plans the caller
// collaborates on.
type Claims struct {
	ID            int64    `json:"id"`
	Email         string   `json:"email,omitempty"`
	Role          string   `json:"role"`
	AffiliationID string   `json:"affiliationId,omitempty"`
	DMPIDs        []string `json:"dmpIds,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs claims with HS256. It exists for tests and the CLI;
// the service itself never issues credentials.
func IssueToken(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil && ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	claims.Role = strings.ToUpper(claims.Role)
	return &claims, nil
}

// FromRequest returns the caller's claims from the auth cookie, or from an
// Authorization bearer header. Anonymous, expired and forged credentials
// all yield nil: the caller is treated as the public.
func FromRequest(r *http.Request, cookieName string, secret []byte) *Claims {
	token := ""
	if cookie, err := r.Cookie(cookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" || len(secret) == 0 {
		return nil
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
