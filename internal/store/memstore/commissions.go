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

func (s *Store) CreateCommission(ctx context.Context, params store.CreateCommissionParams) (store.Commission, error) {
	defer s.lock()()
	if err := s.fault("CreateCommission"); err != nil {
		return store.Commission{}, err
	}
	st := s.data()
	if _, ok := st.affiliates[params.AffiliateID]; !ok {
		return store.Commission{}, fmt.Errorf("failed to create commission: unknown affiliate %s", params.AffiliateID)
	}
	if !params.Amount.IsPositive() {
		return store.Commission{}, fmt.Errorf("failed to create commission: amount must be positive")
	}
	if params.OrderRef != nil {
		for _, c := range st.commissions {
			if c.OrderRef == nil || *c.OrderRef != *params.OrderRef {
				continue
			}
			saleDup := params.Kind == store.CommissionKindSale && c.Kind == store.CommissionKindSale
			poolDup := isPoolKind(params.Kind) && c.Kind == params.Kind && c.AffiliateID == params.AffiliateID
			if saleDup || poolDup {
				return store.Commission{}, fmt.Errorf("failed to create commission: %w", store.ErrDuplicate)
			}
		}
	}
	now := s.now()
	c := store.Commission{
		ID:                 uuid.New(),
		AffiliateID:        params.AffiliateID,
		Kind:               params.Kind,
		ParentCommissionID: params.ParentCommissionID,
		OrderRef:           params.OrderRef,
		Revenue:            cents(params.Revenue),
		Costs:              cents(params.Costs),
		Profit:             cents(params.Profit),
		CommissionRate:     params.CommissionRate.Round(4),
		Amount:             cents(params.Amount),
		Status:             params.Status,
		PeriodStart:        params.PeriodStart,
		PeriodEnd:          params.PeriodEnd,
		ConfirmedAt:        params.ConfirmedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	st.commissions[c.ID] = c
	return c, nil
}

func isPoolKind(kind string) bool {
	return kind == store.CommissionKindRankedPool || kind == store.CommissionKindLotteryPool
}

func (s *Store) GetCommissionByID(ctx context.Context, id uuid.UUID) (store.Commission, error) {
	defer s.lock()()
	c, ok := s.data().commissions[id]
	if !ok {
		return store.Commission{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) filterCommissions(keep func(store.Commission) bool) []store.Commission {
	var out []store.Commission
	for _, c := range s.data().commissions {
		if keep(c) {
			out = append(out, c)
		}
	}
	sortCommissionsAsc(out)
	return out
}

func (s *Store) GetSaleCommissionByOrderRef(ctx context.Context, orderRef string) (store.Commission, error) {
	defer s.lock()()
	list := s.filterCommissions(func(c store.Commission) bool {
		return c.Kind == store.CommissionKindSale && c.OrderRef != nil && *c.OrderRef == orderRef
	})
	if len(list) == 0 {
		return store.Commission{}, store.ErrNotFound
	}
	return list[0], nil
}

func (s *Store) ListCommissionsByOrderRef(ctx context.Context, orderRef string) ([]store.Commission, error) {
	defer s.lock()()
	return s.filterCommissions(func(c store.Commission) bool {
		return c.OrderRef != nil && *c.OrderRef == orderRef
	}), nil
}

func (s *Store) ListChildCommissions(ctx context.Context, parentID uuid.UUID) ([]store.Commission, error) {
	defer s.lock()()
	list := s.filterCommissions(func(c store.Commission) bool {
		return c.ParentCommissionID != nil && *c.ParentCommissionID == parentID
	})
	sort.SliceStable(list, func(i, j int) bool { return list[i].Kind < list[j].Kind })
	return list, nil
}

func (s *Store) ListCommissionsByAffiliate(ctx context.Context, affiliateID uuid.UUID, status string, limit int) ([]store.Commission, error) {
	defer s.lock()()
	list := s.filterCommissions(func(c store.Commission) bool {
		return c.AffiliateID == affiliateID && (status == "" || c.Status == status)
	})
	// newest first
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) ListPayableCommissions(ctx context.Context, affiliateID uuid.UUID) ([]store.Commission, error) {
	defer s.lock()()
	st := s.data()
	claimed := map[uuid.UUID]bool{}
	for requestID, ids := range st.payoutLinks {
		pr := st.payouts[requestID]
		if pr.Status != store.PayoutStatusPending && pr.Status != store.PayoutStatusProcessing {
			continue
		}
		for _, id := range ids {
			claimed[id] = true
		}
	}
	return s.filterCommissions(func(c store.Commission) bool {
		return c.AffiliateID == affiliateID && c.Status == store.CommissionStatusConfirmed && !claimed[c.ID]
	}), nil
}

func (s *Store) TransitionCommission(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (store.Commission, error) {
	defer s.lock()()
	if err := s.fault("TransitionCommission"); err != nil {
		return store.Commission{}, err
	}
	st := s.data()
	c, ok := st.commissions[id]
	if !ok || c.Status != from {
		return store.Commission{}, store.ErrConflict
	}
	c.Status = to
	switch to {
	case store.CommissionStatusConfirmed:
		c.ConfirmedAt = &at
	case store.CommissionStatusCancelled:
		c.CancelledAt = &at
	}
	c.UpdatedAt = s.now()
	st.commissions[id] = c
	return c, nil
}

func (s *Store) MarkCommissionPaid(ctx context.Context, id, affiliateID, payoutRequestID uuid.UUID, at time.Time) (store.Commission, error) {
	defer s.lock()()
	if err := s.fault("MarkCommissionPaid"); err != nil {
		return store.Commission{}, err
	}
	st := s.data()
	c, ok := st.commissions[id]
	if !ok || c.AffiliateID != affiliateID || c.Status != store.CommissionStatusConfirmed {
		return store.Commission{}, store.ErrConflict
	}
	c.Status = store.CommissionStatusPaid
	c.PaidAt = &at
	c.PayoutRequestID = &payoutRequestID
	c.UpdatedAt = s.now()
	st.commissions[id] = c
	return c, nil
}

func (s *Store) SumCommissions(ctx context.Context, affiliateID uuid.UUID) (store.CommissionTotals, error) {
	defer s.lock()()
	totals := store.CommissionTotals{Earned: decimal.Zero, Paid: decimal.Zero}
	for _, c := range s.data().commissions {
		if c.AffiliateID != affiliateID {
			continue
		}
		switch c.Status {
		case store.CommissionStatusConfirmed:
			totals.Earned = totals.Earned.Add(c.Amount)
		case store.CommissionStatusPaid:
			totals.Earned = totals.Earned.Add(c.Amount)
			totals.Paid = totals.Paid.Add(c.Amount)
		}
	}
	return totals, nil
}

func (s *Store) CreateRewardPointsEntry(ctx context.Context, params store.CreateRewardPointsEntryParams) (store.RewardPointsEntry, error) {
	defer s.lock()()
	if err := s.fault("CreateRewardPointsEntry"); err != nil {
		return store.RewardPointsEntry{}, err
	}
	if params.Points <= 0 {
		return store.RewardPointsEntry{}, fmt.Errorf("failed to create reward points entry: points must be positive")
	}
	switch params.Source {
	case store.RewardSourceSale, store.RewardSourceSelfPurchase, store.RewardSourceAdjustment:
	default:
		return store.RewardPointsEntry{}, fmt.Errorf("failed to create reward points entry: invalid source %q", params.Source)
	}
	entry := store.RewardPointsEntry{
		ID:           uuid.New(),
		AffiliateID:  params.AffiliateID,
		Points:       params.Points,
		ProfitAmount: cents(params.ProfitAmount),
		Source:       params.Source,
		CommissionID: params.CommissionID,
		Description:  params.Description,
		CreatedAt:    s.now(),
	}
	st := s.data()
	st.rewardPoints = append(st.rewardPoints, entry)
	return entry, nil
}

func (s *Store) ListRewardPointsHistory(ctx context.Context, affiliateID uuid.UUID, limit int) ([]store.RewardPointsEntry, error) {
	defer s.lock()()
	var out []store.RewardPointsEntry
	entries := s.data().rewardPoints
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].AffiliateID == affiliateID {
			out = append(out, entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) SumRewardPointsBySource(ctx context.Context, affiliateID uuid.UUID) (map[string]int64, error) {
	defer s.lock()()
	totals := map[string]int64{}
	for _, e := range s.data().rewardPoints {
		if e.AffiliateID == affiliateID {
			totals[e.Source] += e.Points
		}
	}
	return totals, nil
}
