package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"commission-engine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Store) CreateAffiliate(ctx context.Context, params store.CreateAffiliateParams) (store.Affiliate, error) {
	defer s.lock()()
	if err := s.fault("CreateAffiliate"); err != nil {
		return store.Affiliate{}, err
	}
	st := s.data()
	for _, a := range st.affiliates {
		if a.Code == params.Code || a.UserID == params.UserID {
			return store.Affiliate{}, fmt.Errorf("failed to create affiliate: %w", store.ErrDuplicate)
		}
	}
	now := s.now()
	a := store.Affiliate{
		ID:                    uuid.New(),
		UserID:                params.UserID,
		Code:                  params.Code,
		ReferredBy:            params.ReferredBy,
		Status:                store.AffiliateStatusActive,
		CommissionMode:        store.CommissionModeCash,
		CommissionRate:        params.CommissionRate,
		TotalEarnings:         decimal.Zero,
		TotalPaid:             decimal.Zero,
		DiscountCreditBalance: decimal.Zero,
		PayoutEmail:           params.PayoutEmail,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	st.affiliates[a.ID] = a
	return a, nil
}

func (s *Store) GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error) {
	defer s.lock()()
	a, ok := s.data().affiliates[id]
	if !ok {
		return store.Affiliate{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAffiliateByIDForUpdate(ctx context.Context, id uuid.UUID) (store.Affiliate, error) {
	return s.GetAffiliateByID(ctx, id)
}

func (s *Store) GetAffiliateByCode(ctx context.Context, code string) (store.Affiliate, error) {
	defer s.lock()()
	for _, a := range s.data().affiliates {
		if a.Code == code {
			return a, nil
		}
	}
	return store.Affiliate{}, store.ErrNotFound
}

func (s *Store) GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (store.Affiliate, error) {
	defer s.lock()()
	for _, a := range s.data().affiliates {
		if a.UserID == userID {
			return a, nil
		}
	}
	return store.Affiliate{}, store.ErrNotFound
}

func (s *Store) sortedAffiliates(filter func(store.Affiliate) bool) []store.Affiliate {
	var out []store.Affiliate
	for _, a := range s.data().affiliates {
		if filter(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) ListAffiliates(ctx context.Context) ([]store.Affiliate, error) {
	defer s.lock()()
	return s.sortedAffiliates(func(store.Affiliate) bool { return true }), nil
}

func (s *Store) ListActiveAffiliatesWithPoints(ctx context.Context) ([]store.Affiliate, error) {
	defer s.lock()()
	return s.sortedAffiliates(func(a store.Affiliate) bool {
		return a.Status == store.AffiliateStatusActive && a.RewardPoints > 0
	}), nil
}

// update applies fn to one affiliate under the store lock.
func (s *Store) update(op string, id uuid.UUID, fn func(*store.Affiliate) error) error {
	defer s.lock()()
	if err := s.fault(op); err != nil {
		return err
	}
	st := s.data()
	a, ok := st.affiliates[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&a); err != nil {
		return err
	}
	a.UpdatedAt = s.now()
	st.affiliates[id] = a
	return nil
}

func (s *Store) UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.update("UpdateAffiliateStatus", id, func(a *store.Affiliate) error {
		a.Status = status
		return nil
	})
}

func (s *Store) UpdateAffiliatePayoutDetails(ctx context.Context, id uuid.UUID, payoutEmail *string, stripeAccountID *string) error {
	return s.update("UpdateAffiliatePayoutDetails", id, func(a *store.Affiliate) error {
		if payoutEmail != nil {
			a.PayoutEmail = payoutEmail
		}
		if stripeAccountID != nil {
			a.StripeAccountID = stripeAccountID
		}
		return nil
	})
}

func (s *Store) UpdateAffiliateMode(ctx context.Context, id uuid.UUID, mode string, changedOn time.Time) error {
	return s.update("UpdateAffiliateMode", id, func(a *store.Affiliate) error {
		day := store.DateOnly(changedOn)
		a.CommissionMode = mode
		a.LastModeChangeDate = &day
		return nil
	})
}

func (s *Store) StampDiscountUse(ctx context.Context, id uuid.UUID, usedOn time.Time, credit decimal.Decimal) error {
	return s.update("StampDiscountUse", id, func(a *store.Affiliate) error {
		day := store.DateOnly(usedOn)
		a.LastDiscountUseDate = &day
		a.DiscountCreditBalance = cents(a.DiscountCreditBalance.Add(credit))
		return nil
	})
}

func (s *Store) IncrementAffiliateRewardPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.update("IncrementAffiliateRewardPoints", id, func(a *store.Affiliate) error {
		if a.RewardPoints+delta < 0 {
			return fmt.Errorf("reward_points would become negative")
		}
		a.RewardPoints += delta
		return nil
	})
}

func (s *Store) IncrementAffiliateEarnings(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return s.update("IncrementAffiliateEarnings", id, func(a *store.Affiliate) error {
		next := cents(a.TotalEarnings.Add(delta))
		if next.IsNegative() {
			return fmt.Errorf("total_earnings would become negative")
		}
		a.TotalEarnings = next
		return nil
	})
}

func (s *Store) IncrementAffiliatePaid(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return s.update("IncrementAffiliatePaid", id, func(a *store.Affiliate) error {
		next := cents(a.TotalPaid.Add(delta))
		if next.IsNegative() {
			return fmt.Errorf("total_paid would become negative")
		}
		a.TotalPaid = next
		return nil
	})
}

func (s *Store) CreateReferral(ctx context.Context, affiliateID, referredUserID uuid.UUID) (store.Referral, error) {
	defer s.lock()()
	if err := s.fault("CreateReferral"); err != nil {
		return store.Referral{}, err
	}
	st := s.data()
	for _, r := range st.referrals {
		if r.ReferredUserID == referredUserID {
			return store.Referral{}, fmt.Errorf("failed to create referral: %w", store.ErrDuplicate)
		}
	}
	r := store.Referral{ID: uuid.New(), AffiliateID: affiliateID, ReferredUserID: referredUserID, CreatedAt: s.now()}
	st.referrals[r.ID] = r
	return r, nil
}

func (s *Store) GetReferralByUserID(ctx context.Context, referredUserID uuid.UUID) (store.Referral, error) {
	defer s.lock()()
	for _, r := range s.data().referrals {
		if r.ReferredUserID == referredUserID {
			return r, nil
		}
	}
	return store.Referral{}, store.ErrNotFound
}

func (s *Store) MarkReferralConverted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer s.lock()()
	if err := s.fault("MarkReferralConverted"); err != nil {
		return false, err
	}
	st := s.data()
	r, ok := st.referrals[id]
	if !ok || r.Converted {
		return false, nil
	}
	r.Converted = true
	r.ConvertedAt = &at
	st.referrals[id] = r
	return true, nil
}

func (s *Store) GetDiscountCodeByAffiliate(ctx context.Context, affiliateID uuid.UUID) (store.DiscountCode, error) {
	defer s.lock()()
	dc, ok := s.data().discountCodes[affiliateID]
	if !ok {
		return store.DiscountCode{}, store.ErrNotFound
	}
	return dc, nil
}

func (s *Store) ActivateDiscountCode(ctx context.Context, affiliateID uuid.UUID, code string, percent decimal.Decimal) (store.DiscountCode, error) {
	defer s.lock()()
	if err := s.fault("ActivateDiscountCode"); err != nil {
		return store.DiscountCode{}, err
	}
	st := s.data()
	now := s.now()
	dc, ok := st.discountCodes[affiliateID]
	if !ok {
		dc = store.DiscountCode{ID: uuid.New(), AffiliateID: affiliateID, Code: code, CreatedAt: now}
	}
	dc.DiscountPercent = percent
	dc.IsActive = true
	dc.UpdatedAt = now
	st.discountCodes[affiliateID] = dc
	return dc, nil
}

func (s *Store) DeactivateDiscountCode(ctx context.Context, affiliateID uuid.UUID) error {
	defer s.lock()()
	if err := s.fault("DeactivateDiscountCode"); err != nil {
		return err
	}
	st := s.data()
	if dc, ok := st.discountCodes[affiliateID]; ok {
		dc.IsActive = false
		dc.UpdatedAt = s.now()
		st.discountCodes[affiliateID] = dc
	}
	return nil
}
