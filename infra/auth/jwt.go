package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"github.com/quakecast/quake-delivery-service/internal/service"
)

// Interface guard
var _ service.Auther = (*JWTAuther)(nil)

// Claims carried by producer tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	Issuer string
	Role   string
}

// JWTAuther verifies HS256 tokens issued to trusted producers.
// With an empty secret every token is rejected, which disables injection.
type JWTAuther struct {
	secret []byte
	issuer string
	role   string
}

func NewJWTAuther(cfg Config) *JWTAuther {
	return &JWTAuther{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		role:   cfg.Role,
	}
}

func (a *JWTAuther) Inspect(_ context.Context, token string) (*model.Producer, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("%w: injection disabled", model.ErrUnauthenticated)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", model.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		// [ALG_PINNING] Rejects "none" and asymmetric algorithm confusion.
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", model.ErrUnauthenticated)
	}

	if a.role != "" && claims.Role != a.role {
		return nil, fmt.Errorf("%w: role %q", model.ErrForbidden, claims.Role)
	}

	return &model.Producer{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Role:    claims.Role,
	}, nil
}

// IssueToken signs a producer token. Used by the CLI and tests.
func IssueToken(secret, issuer, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: empty secret")
	}
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
