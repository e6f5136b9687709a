package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newProcessor(t *testing.T) (AuthProcessor, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return New(s, AuthConfig{JWTSecret: testSecret}, observability.NewLogger()), s
}

func TestIssueAndValidateToken(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := p.IssueToken(ctx, userID, RoleAdmin)
	require.NoError(t, err)

	claims, err := p.ValidateJWTToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "commission-engine", claims.Issuer)
}

func TestIssueToken_RejectsUnknownRole(t *testing.T) {
	p, _ := newProcessor(t)

	_, err := p.IssueToken(context.Background(), uuid.New(), "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateJWTToken_Expired(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	issuedAt := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return issuedAt }
	token, err := p.IssueToken(ctx, uuid.New(), RoleAffiliate)
	require.NoError(t, err)

	p.now = func() time.Time { return issuedAt.Add(25 * time.Hour) }
	_, err = p.ValidateJWTToken(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateJWTToken_Rejects(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": uuid.New().String(),
			"iss": "commission-engine",
			"aud": "commission-engine",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	wrongIssuer := valid()
	wrongIssuer["iss"] = "someone-else"
	badSubject := valid()
	badSubject["sub"] = "not-a-uuid"

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not.a.token", ErrParseJWTToken},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other-secret"), valid()), ErrParseJWTToken},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid()), ErrParseJWTToken},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer), ErrParseJWTToken},
		{"subject not a uuid", sign(jwt.SigningMethodHS256, []byte(testSecret), badSubject), ErrInvalidJWTToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ValidateJWTToken(ctx, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveAffiliate(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := p.ResolveAffiliate(ctx, userID)
	assert.ErrorIs(t, err, ErrNotAnAffiliate)

	affiliate, err := s.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID:         userID,
		Code:           "AUTH01",
		CommissionRate: decimal.RequireFromString("0.42"),
	})
	require.NoError(t, err)

	got, err := p.ResolveAffiliate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, affiliate.ID, got)
}
