package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-webhooks/core"
)

// Claims is the bearer token payload. User falls back to the subject.
type Claims struct {
	jwt.RegisteredClaims
	User      string `json:"user,omitempty"`
	Role      string `json:"role,omitempty"`
	Org       string `json:"org,omitempty"`
	Client    string `json:"client,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
}

type BearerAuthenticator struct {
	secret []byte
	issuer string
}

func NewBearerAuthenticator(secret string, issuer string) (*BearerAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	return &BearerAuthenticator{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

func (a *BearerAuthenticator) Authenticate(_ context.Context, credentials core.Credentials) (core.ActorContext, error) {
	raw := strings.TrimSpace(credentials.BearerToken)
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return core.ActorContext{}, unauthenticated(ErrMissingCredentials, "missing_bearer_token", nil)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return core.ActorContext{}, unauthenticated(err, "invalid_bearer_token", nil)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "invalid_bearer_claims", nil)
	}

	user := strings.TrimSpace(claims.User)
	if user == "" {
		user = strings.TrimSpace(claims.Subject)
	}
	role := strings.TrimSpace(claims.Role)
	if user == "" && role == "" {
		return core.ActorContext{}, unauthenticated(ErrInvalidCredentials, "bearer_token_without_identity", nil)
	}

	return core.ActorContext{
		Method:      core.AuthMethodBearer,
		TokenID:     strings.TrimSpace(claims.ID),
		UserID:      user,
		RoleID:      role,
		ClientID:    strings.TrimSpace(claims.Client),
		OrgID:       strings.TrimSpace(claims.Org),
		WarehouseID: strings.TrimSpace(claims.Warehouse),
	}, nil
}

// IssueToken signs an HS256 bearer token for actor. A zero ttl produces a
// token without expiry.
func IssueToken(secret string, issuer string, actor core.ActorContext, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("auth: jwt secret is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   strings.TrimSpace(issuer),
			Subject:  actor.UserID,
			ID:       actor.TokenID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		User:      actor.UserID,
		Role:      actor.RoleID,
		Org:       actor.OrgID,
		Client:    actor.ClientID,
		Warehouse: actor.WarehouseID,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign bearer token: %w", err)
	}
	return signed, nil
}

var _ core.Authenticator = (*BearerAuthenticator)(nil)
