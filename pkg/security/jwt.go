package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrShortSecret   = errors.New("secret must be at least 32 characters")
)

// TokenProvider issues and validates HS256 tokens that carry a
// principal's audit roles. Validation yields the SecurityContext the
// engine consumes; the engine itself never sees raw tokens elsewhere.
type TokenProvider struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewTokenProvider creates a provider. Secrets shorter than 32
// characters are rejected.
func NewTokenProvider(secret string, tokenDuration time.Duration) (*TokenProvider, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	return &TokenProvider{
		secretKey:     []byte(secret),
		tokenDuration: tokenDuration,
	}, nil
}

// IssueToken signs a token for the principal with the given roles.
func (p *TokenProvider) IssueToken(principalID string, roles ...string) (string, error) {
	if principalID == "" {
		return "", fmt.Errorf("%w: empty principal id", ErrInvalidClaims)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   principalID,
		"roles": roles,
		"exp":   now.Add(p.tokenDuration).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token and maps its roles to a
// SecurityContext. Any parse or signature failure fails closed.
func (p *TokenProvider) ValidateToken(_ context.Context, tokenString string) (*SecurityContext, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	principalID, ok := claimsMap["sub"].(string)
	if !ok || principalID == "" {
		return nil, fmt.Errorf("%w: missing or invalid sub", ErrInvalidClaims)
	}

	var roles []string
	if raw, ok := claimsMap["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	return FromRoles(principalID, roles...), nil
}

// Name identifies the provider in logs.
func (p *TokenProvider) Name() string {
	return "jwt-hs256"
}
