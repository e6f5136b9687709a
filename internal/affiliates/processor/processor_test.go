package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T) (*memstore.Store, AffiliateProcessor) {
	t.Helper()
	s := memstore.New()
	return s, New(s, observability.NewLogger())
}

func register(t *testing.T, p AffiliateProcessor, code string, referrer *string) store.Affiliate {
	t.Helper()
	a, err := p.Register(context.Background(), RegisterRequest{UserID: uuid.New(), Code: code, ReferrerCode: referrer})
	require.NoError(t, err)
	return a
}

func strPtr(s string) *string { return &s }

func TestValidateCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr error
	}{
		{code: "ABCD", wantErr: nil},
		{code: "ABCDEFGH1234", wantErr: nil},
		{code: "ABC", wantErr: ErrInvalidCode},
		{code: "ABCDEFGH12345", wantErr: ErrInvalidCode},
		{code: "AB-CD", wantErr: ErrInvalidCode},
		{code: "abcd", wantErr: ErrInvalidCode},
		{code: "ADMIN", wantErr: ErrReservedCode},
		{code: "UNDEFINED", wantErr: ErrReservedCode},
		{code: "OWNER", wantErr: ErrReservedCode},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateCode(tt.code)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	_, p := newTestProcessor(t)

	parent := register(t, p, " jane01 ", nil)
	assert.Equal(t, "JANE01", parent.Code, "codes are normalized")
	assert.Equal(t, store.CommissionModeCash, parent.CommissionMode)
	assert.True(t, parent.CommissionRate.Equal(DefaultCommissionRate))

	child := register(t, p, "JOHN02", strPtr("jane01"))
	require.NotNil(t, child.ReferredBy)
	assert.Equal(t, parent.ID, *child.ReferredBy)

	t.Run("code taken", func(t *testing.T) {
		_, err := p.Register(ctx, RegisterRequest{UserID: uuid.New(), Code: "JANE01"})
		assert.ErrorIs(t, err, ErrCodeTaken)
	})

	t.Run("user already an affiliate", func(t *testing.T) {
		_, err := p.Register(ctx, RegisterRequest{UserID: parent.UserID, Code: "OTHER1"})
		assert.ErrorIs(t, err, ErrAffiliateExists)
	})

	t.Run("unknown referrer", func(t *testing.T) {
		_, err := p.Register(ctx, RegisterRequest{UserID: uuid.New(), Code: "KIM003", ReferrerCode: strPtr("NOPE99")})
		assert.ErrorIs(t, err, ErrReferrerNotFound)
	})

	t.Run("reserved", func(t *testing.T) {
		_, err := p.Register(ctx, RegisterRequest{UserID: uuid.New(), Code: "root"})
		assert.ErrorIs(t, err, ErrReservedCode)
	})
}

// racingStore misses the user on the first lookup, then lets a competing
// registration for the same user land before the insert
type racingStore struct {
	*memstore.Store
	competingCode string
	raced         bool
}

func (r *racingStore) GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (store.Affiliate, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.Store.CreateAffiliate(ctx, store.CreateAffiliateParams{
			UserID:         userID,
			Code:           r.competingCode,
			CommissionRate: DefaultCommissionRate,
		}); err != nil {
			return store.Affiliate{}, err
		}
		return store.Affiliate{}, store.ErrNotFound
	}
	return r.Store.GetAffiliateByUserID(ctx, userID)
}

func TestRegister_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	s := &racingStore{Store: memstore.New(), competingCode: "FIRST01"}
	p := New(s, observability.NewLogger())

	_, err := p.Register(ctx, RegisterRequest{UserID: uuid.New(), Code: "SECOND01"})
	assert.ErrorIs(t, err, ErrAffiliateExists)
	assert.NotErrorIs(t, err, ErrCodeTaken)
}

func TestUplines(t *testing.T) {
	ctx := context.Background()
	s, p := newTestProcessor(t)

	top := register(t, p, "TOP001", nil)
	mid := register(t, p, "MID001", strPtr("TOP001"))
	seller := register(t, p, "SELL01", strPtr("MID001"))
	loner := register(t, p, "SOLO01", nil)

	level1, level2, err := Uplines(ctx, s, seller)
	require.NoError(t, err)
	require.NotNil(t, level1)
	require.NotNil(t, level2)
	assert.Equal(t, mid.ID, level1.ID)
	assert.Equal(t, top.ID, level2.ID)

	level1, level2, err = Uplines(ctx, s, mid)
	require.NoError(t, err)
	require.NotNil(t, level1)
	assert.Equal(t, top.ID, level1.ID)
	assert.Nil(t, level2)

	level1, level2, err = Uplines(ctx, s, loner)
	require.NoError(t, err)
	assert.Nil(t, level1)
	assert.Nil(t, level2)

	t.Run("suspended level 1 ends the chain", func(t *testing.T) {
		_, err := p.SetStatus(ctx, mid.ID, store.AffiliateStatusSuspended)
		require.NoError(t, err)

		level1, level2, err := Uplines(ctx, s, seller)
		require.NoError(t, err)
		assert.Nil(t, level1)
		assert.Nil(t, level2)
	})
}

func TestSetStatus_Invalid(t *testing.T) {
	_, p := newTestProcessor(t)
	a := register(t, p, "STAT01", nil)

	_, err := p.SetStatus(context.Background(), a.ID, "banned")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = p.SetStatus(context.Background(), uuid.New(), store.AffiliateStatusSuspended)
	assert.ErrorIs(t, err, ErrAffiliateNotFound)
}
