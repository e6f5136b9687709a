package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"

	tokenIssuer   = "commission-engine"
	tokenAudience = "commission-engine"
)

var (
	ErrInvalidJWTToken = errors.New("invalid jwt token")
	ErrParseJWTToken   = errors.New("failed to parse jwt token")
	ErrExpiredToken    = errors.New("token expired")
	ErrFailedSignIn    = errors.New("failed to sign token")
	ErrInvalidRole     = errors.New("invalid role")
	ErrNotAnAffiliate  = errors.New("user is not an affiliate")
)

// AuthConfig holds token settings. Tokens are issued by the identity
// service and signed with the shared secret.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type AuthProcessor struct {
	affiliates AffiliateLookup
	authConfig AuthConfig
	logger     *observability.Logger
	now        func() time.Time
}

func New(affiliates AffiliateLookup, authConfig AuthConfig, logger *observability.Logger) AuthProcessor {
	if authConfig.TokenTTL <= 0 {
		authConfig.TokenTTL = 24 * time.Hour
	}
	return AuthProcessor{
		affiliates: affiliates,
		authConfig: authConfig,
		logger:     logger,
		now:        time.Now,
	}
}

type BaseClaims struct {
	ExpirationTime *jwt.NumericDate `json:"exp"`
	IssuedAt       *jwt.NumericDate `json:"iat"`
	NotBefore      *jwt.NumericDate `json:"nbf"`
	Issuer         string           `json:"iss"`
	Subject        string           `json:"sub"`
	Audience       jwt.ClaimStrings `json:"aud"`
	Role           string           `json:"role"`
}

// IsAdmin reports whether the token grants access to the operator API
func (b BaseClaims) IsAdmin() bool {
	return b.Role == RoleAdmin
}

// ResolveAffiliate returns the affiliate id owned by userID, or
// ErrNotAnAffiliate when the user has not registered yet.
func (p *AuthProcessor) ResolveAffiliate(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "user_id", Value: userID.String()})

	affiliate, err := p.affiliates.GetAffiliateByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, ErrNotAnAffiliate
		}
		p.logger.Error(ctx, "failed to resolve affiliate for user", err)
		return uuid.Nil, err
	}
	return affiliate.ID, nil
}
