package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrAggregateMismatch = errors.New("affiliate aggregates disagree with ledger")
	ErrHaltNotFound      = errors.New("ledger halt not found")
)

// FieldMismatch is one cached aggregate that differs from its ledger sum
type FieldMismatch struct {
	Field  string `json:"field"`
	Cached string `json:"cached"`
	Ledger string `json:"ledger"`
}

// AggregateMismatchError reports an affiliate whose cached totals drifted.
// It is never corrected automatically.
type AggregateMismatchError struct {
	AffiliateID uuid.UUID       `json:"affiliate_id"`
	Fields      []FieldMismatch `json:"fields"`
}

func (e *AggregateMismatchError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s cached=%s ledger=%s", f.Field, f.Cached, f.Ledger)
	}
	return fmt.Sprintf("aggregate mismatch for affiliate %s: %s", e.AffiliateID, strings.Join(parts, ", "))
}

func (e *AggregateMismatchError) Unwrap() error {
	return ErrAggregateMismatch
}

// Reconcile compares an affiliate's cached totals with the ledger. A mismatch
// halts money movement until an operator resolves it.
func (p *CommissionProcessor) Reconcile(ctx context.Context, affiliateID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "affiliate_id", Value: affiliateID.String()})

	affiliate, err := p.store.GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to get affiliate", err)
		return err
	}
	return p.reconcile(ctx, affiliate)
}

func (p *CommissionProcessor) reconcile(ctx context.Context, affiliate store.Affiliate) error {
	totals, err := p.store.SumCommissions(ctx, affiliate.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to sum commissions", err)
		return err
	}
	points, err := p.store.SumRewardPointsBySource(ctx, affiliate.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to sum reward points", err)
		return err
	}
	var ledgerPoints int64
	for _, n := range points {
		ledgerPoints += n
	}

	var fields []FieldMismatch
	if !affiliate.TotalEarnings.Equal(totals.Earned) {
		fields = append(fields, FieldMismatch{"total_earnings", affiliate.TotalEarnings.StringFixed(2), totals.Earned.StringFixed(2)})
	}
	if !affiliate.TotalPaid.Equal(totals.Paid) {
		fields = append(fields, FieldMismatch{"total_paid", affiliate.TotalPaid.StringFixed(2), totals.Paid.StringFixed(2)})
	}
	if affiliate.RewardPoints != ledgerPoints {
		fields = append(fields, FieldMismatch{"reward_points", strconv.FormatInt(affiliate.RewardPoints, 10), strconv.FormatInt(ledgerPoints, 10)})
	}
	if len(fields) == 0 {
		return nil
	}

	mismatch := &AggregateMismatchError{AffiliateID: affiliate.ID, Fields: fields}
	observability.AggregateMismatch()
	p.logger.Error(ctx, "affiliate aggregates disagree with ledger", mismatch)

	if err := p.halt(ctx, mismatch); err != nil {
		return err
	}
	return mismatch
}

func (p *CommissionProcessor) halt(ctx context.Context, mismatch *AggregateMismatchError) error {
	_, err := p.store.GetActiveLedgerHalt(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		p.logger.Error(ctx, "failed to check ledger halt", err)
		return err
	}
	if _, err := p.store.CreateLedgerHalt(ctx, mismatch.Error(), &mismatch.AffiliateID); err != nil {
		p.logger.Error(ctx, "failed to create ledger halt", err)
		return err
	}
	p.logger.Warn(ctx, "ledger halted pending manual reconciliation")
	return nil
}

// ReconcileReport summarizes a full reconciliation pass
type ReconcileReport struct {
	Checked    int                       `json:"checked"`
	Mismatches []*AggregateMismatchError `json:"mismatches"`
}

// ReconcileAll checks every affiliate and returns ErrAggregateMismatch when
// any of them drifted
func (p *CommissionProcessor) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	affiliates, err := p.store.ListAffiliates(ctx)
	if err != nil {
		p.logger.Error(ctx, "failed to list affiliates", err)
		return ReconcileReport{}, err
	}

	report := ReconcileReport{Mismatches: []*AggregateMismatchError{}}
	for _, affiliate := range affiliates {
		affiliateCtx := observability.WithFields(ctx, observability.Field{Key: "affiliate_id", Value: affiliate.ID.String()})
		err := p.reconcile(affiliateCtx, affiliate)
		report.Checked++

		var mismatch *AggregateMismatchError
		switch {
		case err == nil:
		case errors.As(err, &mismatch):
			report.Mismatches = append(report.Mismatches, mismatch)
		default:
			return report, err
		}
	}

	if len(report.Mismatches) > 0 {
		return report, fmt.Errorf("%w: %d of %d affiliates", ErrAggregateMismatch, len(report.Mismatches), report.Checked)
	}
	return report, nil
}

// ActiveHalt returns the current halt, or nil when money movement is allowed
func (p *CommissionProcessor) ActiveHalt(ctx context.Context) (*store.LedgerHalt, error) {
	halt, err := p.store.GetActiveLedgerHalt(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		p.logger.Error(ctx, "failed to get ledger halt", err)
		return nil, err
	}
	return &halt, nil
}

// ResolveHalt clears a halt after the ledger has been repaired by hand
func (p *CommissionProcessor) ResolveHalt(ctx context.Context, id uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "halt_id", Value: id.String()})

	if err := p.store.ResolveLedgerHalt(ctx, id, p.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrHaltNotFound
		}
		p.logger.Error(ctx, "failed to resolve ledger halt", err)
		return err
	}
	p.logger.Info(ctx, "ledger halt resolved")
	return nil
}
