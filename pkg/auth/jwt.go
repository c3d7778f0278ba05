package auth

import (
	"errors"
	"time"

	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin   = "admin"
	RoleInvitee = "invitee"

	ScopeInvitee = "challenges:read bookings:read"
)

type Claims struct {
	Sub   int64  `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func NewAccessToken(sub int64, email, role, scope, audience, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:   sub,
		Email: email,
		Role:  role,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Issuer mints invitee tokens after a challenge is accepted.
type Issuer struct {
	secret   string
	audience string
	ttl      time.Duration
}

func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{secret: cfg.JWTSecret, audience: cfg.Audience, ttl: cfg.InviteeTokenTTL}
}

func (i *Issuer) IssueInviteeToken(accountID int64, email string) (string, error) {
	return NewAccessToken(accountID, email, RoleInvitee, ScopeInvitee, i.audience, i.secret, i.ttl)
}
