package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransitionResult is the commission that moved plus any upline children that
// moved with it
type TransitionResult struct {
	Commission store.Commission   `json:"commission"`
	Children   []store.Commission `json:"children"`
	// AlreadyApplied is set when an order-level call found the commission
	// already in the requested state
	AlreadyApplied bool `json:"already_applied"`
}

// Confirm moves a pending commission to confirmed and credits the affiliate's
// total earnings. Pending upline commissions follow their parent.
func (p *CommissionProcessor) Confirm(ctx context.Context, id uuid.UUID) (TransitionResult, error) {
	return p.transition(ctx, id, store.CommissionStatusConfirmed)
}

// Cancel voids a pending commission and its pending children
func (p *CommissionProcessor) Cancel(ctx context.Context, id uuid.UUID) (TransitionResult, error) {
	return p.transition(ctx, id, store.CommissionStatusCancelled)
}

// ConfirmByOrder confirms the sale commission of a paid order. Repeated
// confirmations succeed with AlreadyApplied.
func (p *CommissionProcessor) ConfirmByOrder(ctx context.Context, orderRef string) (TransitionResult, error) {
	return p.transitionByOrder(ctx, orderRef, store.CommissionStatusConfirmed)
}

// CancelByOrder cancels the sale commission of a refunded or voided order
func (p *CommissionProcessor) CancelByOrder(ctx context.Context, orderRef string) (TransitionResult, error) {
	return p.transitionByOrder(ctx, orderRef, store.CommissionStatusCancelled)
}

func (p *CommissionProcessor) transitionByOrder(ctx context.Context, orderRef, to string) (TransitionResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: orderRef})

	sale, err := p.store.GetSaleCommissionByOrderRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TransitionResult{}, ErrCommissionNotFound
		}
		p.logger.Error(ctx, "failed to get commission by order", err)
		return TransitionResult{}, err
	}

	applied := sale.Status == to || (to == store.CommissionStatusConfirmed && sale.Status == store.CommissionStatusPaid)
	if applied {
		return TransitionResult{Commission: sale, Children: []store.Commission{}, AlreadyApplied: true}, nil
	}
	return p.transition(ctx, sale.ID, to)
}

func (p *CommissionProcessor) transition(ctx context.Context, id uuid.UUID, to string) (TransitionResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "commission_id", Value: id.String()},
		observability.Field{Key: "to_status", Value: to},
	)

	now := p.now()
	result := TransitionResult{Children: []store.Commission{}}
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		c, err := tx.TransitionCommission(ctx, id, store.CommissionStatusPending, to, now)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				if _, getErr := tx.GetCommissionByID(ctx, id); errors.Is(getErr, store.ErrNotFound) {
					return ErrCommissionNotFound
				}
				return ErrInvalidTransition
			}
			return err
		}
		if to == store.CommissionStatusConfirmed {
			if err := tx.IncrementAffiliateEarnings(ctx, c.AffiliateID, c.Amount); err != nil {
				return err
			}
		}
		result.Commission = c

		children, err := tx.ListChildCommissions(ctx, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if child.Status != store.CommissionStatusPending {
				continue
			}
			moved, err := tx.TransitionCommission(ctx, child.ID, store.CommissionStatusPending, to, now)
			if err != nil {
				return err
			}
			if to == store.CommissionStatusConfirmed {
				if err := tx.IncrementAffiliateEarnings(ctx, moved.AffiliateID, moved.Amount); err != nil {
					return err
				}
			}
			result.Children = append(result.Children, moved)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrCommissionNotFound) {
			p.logger.Error(ctx, "failed to transition commission", err)
		}
		return TransitionResult{}, err
	}

	publish := p.eventsConfirmed
	if to == store.CommissionStatusCancelled {
		publish = p.eventsCancelled
	}
	for _, c := range append([]store.Commission{result.Commission}, result.Children...) {
		observability.CommissionTransition(store.CommissionStatusPending, to)
		p.publish(ctx, publish, c)
	}

	p.logger.Info(ctx, fmt.Sprintf("commission moved to %s with %d children", to, len(result.Children)))
	return result, nil
}

// SettleResult reports a completed settlement
type SettleResult struct {
	Commissions []store.Commission `json:"commissions"`
	Total       decimal.Decimal    `json:"total"`
}

// Settle marks confirmed commissions paid against one payout and credits the
// affiliate's total paid. Either every commission settles or none does.
func (p *CommissionProcessor) Settle(ctx context.Context, affiliateID uuid.UUID, commissionIDs []uuid.UUID, payoutRequestID uuid.UUID) (SettleResult, error) {
	ctx, span := observability.StartSpan(ctx, "commissions.Settle")
	defer span.End()

	var result SettleResult
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		result, err = p.SettleInTx(ctx, tx, affiliateID, commissionIDs, payoutRequestID)
		return err
	})
	if err != nil {
		return SettleResult{}, err
	}

	for range result.Commissions {
		observability.CommissionTransition(store.CommissionStatusConfirmed, store.CommissionStatusPaid)
	}
	return result, nil
}

// SettleInTx performs Settle inside the caller's transaction
func (p *CommissionProcessor) SettleInTx(ctx context.Context, tx store.Repository, affiliateID uuid.UUID, commissionIDs []uuid.UUID, payoutRequestID uuid.UUID) (SettleResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: affiliateID.String()},
		observability.Field{Key: "payout_request_id", Value: payoutRequestID.String()},
	)

	if len(commissionIDs) == 0 {
		return SettleResult{}, ErrNothingToSettle
	}
	if err := store.EnsureNotHalted(ctx, tx); err != nil {
		return SettleResult{}, err
	}

	now := p.now()
	seen := make(map[uuid.UUID]struct{}, len(commissionIDs))
	result := SettleResult{Commissions: make([]store.Commission, 0, len(commissionIDs)), Total: decimal.Zero}
	for _, id := range commissionIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c, err := tx.MarkCommissionPaid(ctx, id, affiliateID, payoutRequestID, now)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return SettleResult{}, fmt.Errorf("%w: commission %s is not a confirmed commission of this affiliate", ErrInvalidTransition, id)
			}
			p.logger.Error(ctx, "failed to mark commission paid", err)
			return SettleResult{}, err
		}
		result.Commissions = append(result.Commissions, c)
		result.Total = result.Total.Add(c.Amount)
	}

	if err := tx.IncrementAffiliatePaid(ctx, affiliateID, result.Total); err != nil {
		p.logger.Error(ctx, "failed to increment total paid", err)
		return SettleResult{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("settled %d commissions totalling %s", len(result.Commissions), result.Total.StringFixed(2)))
	return result, nil
}
