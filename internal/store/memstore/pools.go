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

func (s *Store) AddDailyProfit(ctx context.Context, affiliateID uuid.UUID, date time.Time, delta decimal.Decimal) error {
	defer s.lock()()
	if err := s.fault("AddDailyProfit"); err != nil {
		return err
	}
	st := s.data()
	day := store.DateOnly(date)
	now := s.now()
	for id, stat := range st.dailyStats {
		if stat.AffiliateID == affiliateID && stat.Date.Equal(day) {
			stat.ProfitGenerated = cents(stat.ProfitGenerated.Add(delta))
			stat.UpdatedAt = now
			st.dailyStats[id] = stat
			return nil
		}
	}
	stat := store.DailyStat{
		ID:              uuid.New(),
		AffiliateID:     affiliateID,
		Date:            day,
		ProfitGenerated: cents(delta),
		PoolShare:       decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	st.dailyStats[stat.ID] = stat
	return nil
}

func (s *Store) ListDailyStats(ctx context.Context, date time.Time) ([]store.DailyStat, error) {
	defer s.lock()()
	day := store.DateOnly(date)
	var out []store.DailyStat
	for _, stat := range s.data().dailyStats {
		if stat.Date.Equal(day) {
			out = append(out, stat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ProfitGenerated.Cmp(out[j].ProfitGenerated); c != 0 {
			return c > 0
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AffiliateID.String() < out[j].AffiliateID.String()
	})
	return out, nil
}

func (s *Store) UpdateDailyStatRanking(ctx context.Context, id uuid.UUID, rank int, poolShare decimal.Decimal) error {
	defer s.lock()()
	if err := s.fault("UpdateDailyStatRanking"); err != nil {
		return err
	}
	st := s.data()
	stat, ok := st.dailyStats[id]
	if !ok {
		return store.ErrNotFound
	}
	r := rank
	stat.Rank = &r
	stat.PoolShare = cents(poolShare)
	stat.UpdatedAt = s.now()
	st.dailyStats[id] = stat
	return nil
}

func (s *Store) GetRankedPoolRun(ctx context.Context, date time.Time) (store.RankedPoolRun, error) {
	defer s.lock()()
	run, ok := s.data().rankedRuns[store.DateOnly(date)]
	if !ok {
		return store.RankedPoolRun{}, store.ErrNotFound
	}
	return run, nil
}

func (s *Store) CreateRankedPoolRun(ctx context.Context, params store.CreateRankedPoolRunParams) (store.RankedPoolRun, error) {
	defer s.lock()()
	if err := s.fault("CreateRankedPoolRun"); err != nil {
		return store.RankedPoolRun{}, err
	}
	st := s.data()
	day := store.DateOnly(params.Date)
	if _, ok := st.rankedRuns[day]; ok {
		return store.RankedPoolRun{}, store.ErrConflict
	}
	run := store.RankedPoolRun{
		ID:                uuid.New(),
		Date:              day,
		TotalProfit:       cents(params.TotalProfit),
		PoolAmount:        cents(params.PoolAmount),
		DistributedAmount: cents(params.DistributedAmount),
		CreatedAt:         s.now(),
	}
	st.rankedRuns[day] = run
	return run, nil
}

func (s *Store) CreateHourlySnapshots(ctx context.Context, snapshots []store.HourlyRankingSnapshot) error {
	defer s.lock()()
	if err := s.fault("CreateHourlySnapshots"); err != nil {
		return err
	}
	st := s.data()
	for _, snap := range snapshots {
		if snap.ID == uuid.Nil {
			snap.ID = uuid.New()
		}
		snap.ProfitGenerated = cents(snap.ProfitGenerated)
		st.snapshots = append(st.snapshots, snap)
	}
	return nil
}

func (s *Store) ListSnapshotsSince(ctx context.Context, since time.Time) ([]store.HourlyRankingSnapshot, error) {
	defer s.lock()()
	var out []store.HourlyRankingSnapshot
	for _, snap := range s.data().snapshots {
		if !snap.RecordedAt.Before(since) {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

func (s *Store) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	defer s.lock()()
	if err := s.fault("DeleteSnapshotsBefore"); err != nil {
		return 0, err
	}
	st := s.data()
	kept := st.snapshots[:0]
	var removed int64
	for _, snap := range st.snapshots {
		if snap.RecordedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	st.snapshots = kept
	return removed, nil
}

func (s *Store) AddToAnnualPot(ctx context.Context, year int, delta decimal.Decimal) error {
	defer s.lock()()
	if err := s.fault("AddToAnnualPot"); err != nil {
		return err
	}
	st := s.data()
	now := s.now()
	pot, ok := st.annualPots[year]
	if !ok {
		pot = store.AnnualPot{ID: uuid.New(), Year: year, TotalAmount: decimal.Zero, CreatedAt: now}
	}
	if pot.Distributed {
		return store.ErrConflict
	}
	pot.TotalAmount = cents(pot.TotalAmount.Add(delta))
	pot.UpdatedAt = now
	st.annualPots[year] = pot
	return nil
}

func (s *Store) CreatePotContribution(ctx context.Context, params store.CreatePotContributionParams) error {
	defer s.lock()()
	if err := s.fault("CreatePotContribution"); err != nil {
		return err
	}
	st := s.data()
	if params.Reason == store.PotContributionReasonSale && params.OrderRef != nil {
		for _, c := range st.contributions {
			if c.Reason == store.PotContributionReasonSale && c.OrderRef != nil && *c.OrderRef == *params.OrderRef {
				return fmt.Errorf("failed to create pot contribution: %w", store.ErrDuplicate)
			}
		}
	}
	st.contributions = append(st.contributions, store.PotContribution{
		ID:           uuid.New(),
		Year:         params.Year,
		CommissionID: params.CommissionID,
		OrderRef:     params.OrderRef,
		Amount:       cents(params.Amount),
		Reason:       params.Reason,
		CreatedAt:    s.now(),
	})
	return nil
}

// PotContributions returns the recorded inflows for a year.
func (s *Store) PotContributions(year int) []store.PotContribution {
	defer s.lock()()
	var out []store.PotContribution
	for _, c := range s.data().contributions {
		if c.Year == year {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) GetAnnualPot(ctx context.Context, year int) (store.AnnualPot, error) {
	defer s.lock()()
	pot, ok := s.data().annualPots[year]
	if !ok {
		return store.AnnualPot{}, store.ErrNotFound
	}
	return pot, nil
}

func (s *Store) GetAnnualPotForUpdate(ctx context.Context, year int) (store.AnnualPot, error) {
	return s.GetAnnualPot(ctx, year)
}

func (s *Store) MarkAnnualPotDistributed(ctx context.Context, year int, at time.Time) error {
	defer s.lock()()
	if err := s.fault("MarkAnnualPotDistributed"); err != nil {
		return err
	}
	st := s.data()
	pot, ok := st.annualPots[year]
	if !ok || pot.Distributed {
		return store.ErrConflict
	}
	pot.Distributed = true
	pot.DistributionDate = &at
	pot.UpdatedAt = s.now()
	st.annualPots[year] = pot
	return nil
}

func (s *Store) CreatePayoutRequest(ctx context.Context, params store.CreatePayoutRequestParams) (store.PayoutRequest, error) {
	defer s.lock()()
	if err := s.fault("CreatePayoutRequest"); err != nil {
		return store.PayoutRequest{}, err
	}
	st := s.data()
	for _, pr := range st.payouts {
		open := pr.Status == store.PayoutStatusPending || pr.Status == store.PayoutStatusProcessing
		if pr.AffiliateID == params.AffiliateID && open {
			return store.PayoutRequest{}, fmt.Errorf("failed to create payout request: %w", store.ErrDuplicate)
		}
	}
	pr := store.PayoutRequest{
		ID:          uuid.New(),
		AffiliateID: params.AffiliateID,
		Amount:      cents(params.Amount),
		Currency:    params.Currency,
		Status:      store.PayoutStatusPending,
		PayoutEmail: params.PayoutEmail,
		Notes:       params.Notes,
		CreatedAt:   s.now(),
	}
	st.payouts[pr.ID] = pr
	st.payoutLinks[pr.ID] = append([]uuid.UUID(nil), params.CommissionIDs...)
	return pr, nil
}

func (s *Store) GetPayoutRequestByID(ctx context.Context, id uuid.UUID) (store.PayoutRequest, error) {
	defer s.lock()()
	pr, ok := s.data().payouts[id]
	if !ok {
		return store.PayoutRequest{}, store.ErrNotFound
	}
	return pr, nil
}

func (s *Store) GetOpenPayoutRequestByAffiliate(ctx context.Context, affiliateID uuid.UUID) (store.PayoutRequest, error) {
	defer s.lock()()
	for _, pr := range s.data().payouts {
		open := pr.Status == store.PayoutStatusPending || pr.Status == store.PayoutStatusProcessing
		if pr.AffiliateID == affiliateID && open {
			return pr, nil
		}
	}
	return store.PayoutRequest{}, store.ErrNotFound
}

func (s *Store) ListPayoutRequestsByStatus(ctx context.Context, status string, limit int) ([]store.PayoutRequest, error) {
	defer s.lock()()
	var out []store.PayoutRequest
	for _, pr := range s.data().payouts {
		if pr.Status == status {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPayoutRequestCommissionIDs(ctx context.Context, payoutRequestID uuid.UUID) ([]uuid.UUID, error) {
	defer s.lock()()
	ids := append([]uuid.UUID(nil), s.data().payoutLinks[payoutRequestID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *Store) setPayoutStatus(op string, id uuid.UUID, from string, fn func(*store.PayoutRequest)) error {
	defer s.lock()()
	if err := s.fault(op); err != nil {
		return err
	}
	st := s.data()
	pr, ok := st.payouts[id]
	if !ok || pr.Status != from {
		return store.ErrConflict
	}
	fn(&pr)
	st.payouts[id] = pr
	return nil
}

func (s *Store) TransitionPayoutRequest(ctx context.Context, id uuid.UUID, from, to string) error {
	return s.setPayoutStatus("TransitionPayoutRequest", id, from, func(pr *store.PayoutRequest) {
		pr.Status = to
	})
}

func (s *Store) CompletePayoutRequest(ctx context.Context, id uuid.UUID, externalID string, at time.Time) error {
	return s.setPayoutStatus("CompletePayoutRequest", id, store.PayoutStatusProcessing, func(pr *store.PayoutRequest) {
		pr.Status = store.PayoutStatusPaid
		pr.ExternalID = &externalID
		pr.ProcessedAt = &at
		pr.ErrorMessage = nil
	})
}

func (s *Store) FailPayoutRequest(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return s.setPayoutStatus("FailPayoutRequest", id, store.PayoutStatusProcessing, func(pr *store.PayoutRequest) {
		pr.Status = store.PayoutStatusFailed
		pr.ErrorMessage = &message
		pr.ProcessedAt = &at
	})
}

func (s *Store) CreateLedgerHalt(ctx context.Context, reason string, affiliateID *uuid.UUID) (store.LedgerHalt, error) {
	defer s.lock()()
	if err := s.fault("CreateLedgerHalt"); err != nil {
		return store.LedgerHalt{}, err
	}
	st := s.data()
	halt := store.LedgerHalt{ID: uuid.New(), AffiliateID: affiliateID, Reason: reason, CreatedAt: s.now()}
	st.halts = append(st.halts, halt)
	return halt, nil
}

func (s *Store) GetActiveLedgerHalt(ctx context.Context) (store.LedgerHalt, error) {
	defer s.lock()()
	for _, h := range s.data().halts {
		if h.ResolvedAt == nil {
			return h, nil
		}
	}
	return store.LedgerHalt{}, store.ErrNotFound
}

func (s *Store) ResolveLedgerHalt(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer s.lock()()
	st := s.data()
	for i, h := range st.halts {
		if h.ID == id && h.ResolvedAt == nil {
			st.halts[i].ResolvedAt = &at
			return nil
		}
	}
	return store.ErrNotFound
}
