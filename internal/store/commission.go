package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const commissionColumns = `id, affiliate_id, kind, parent_commission_id, order_ref, revenue, costs, profit, commission_rate, amount, status, period_start, period_end, confirmed_at, cancelled_at, paid_at, payout_request_id, created_at, updated_at`

const sqlCreateCommission = `
INSERT INTO commissions (affiliate_id, kind, parent_commission_id, order_ref, revenue, costs, profit, commission_rate, amount, status, period_start, period_end, confirmed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + commissionColumns

// CreateCommission inserts a commission row
func (s *Store) CreateCommission(ctx context.Context, params CreateCommissionParams) (Commission, error) {
	var commission Commission
	err := s.db.GetContext(ctx, &commission, sqlCreateCommission,
		params.AffiliateID,
		params.Kind,
		params.ParentCommissionID,
		params.OrderRef,
		params.Revenue,
		params.Costs,
		params.Profit,
		params.CommissionRate,
		params.Amount,
		params.Status,
		params.PeriodStart,
		params.PeriodEnd,
		params.ConfirmedAt)
	if err != nil {
		if uniqueViolation(err) {
			return Commission{}, fmt.Errorf("failed to create commission: %w", ErrDuplicate)
		}
		return Commission{}, fmt.Errorf("failed to create commission: %w", err)
	}
	return commission, nil
}

const sqlGetCommissionByID = `SELECT ` + commissionColumns + ` FROM commissions WHERE id = $1`

// GetCommissionByID retrieves a commission by ID
func (s *Store) GetCommissionByID(ctx context.Context, id uuid.UUID) (Commission, error) {
	var commission Commission
	err := s.db.GetContext(ctx, &commission, sqlGetCommissionByID, id)
	if err != nil {
		if notFound(err) {
			return Commission{}, ErrNotFound
		}
		return Commission{}, fmt.Errorf("failed to get commission: %w", err)
	}
	return commission, nil
}

const sqlGetSaleCommissionByOrderRef = `
SELECT ` + commissionColumns + `
FROM commissions
WHERE order_ref = $1 AND kind = 'sale'
`

// GetSaleCommissionByOrderRef retrieves the sale commission for an order
func (s *Store) GetSaleCommissionByOrderRef(ctx context.Context, orderRef string) (Commission, error) {
	var commission Commission
	err := s.db.GetContext(ctx, &commission, sqlGetSaleCommissionByOrderRef, orderRef)
	if err != nil {
		if notFound(err) {
			return Commission{}, ErrNotFound
		}
		return Commission{}, fmt.Errorf("failed to get commission by order: %w", err)
	}
	return commission, nil
}

const sqlListCommissionsByOrderRef = `
SELECT ` + commissionColumns + `
FROM commissions
WHERE order_ref = $1
ORDER BY created_at ASC, id ASC
`

// ListCommissionsByOrderRef retrieves every commission tagged with an order
// reference
func (s *Store) ListCommissionsByOrderRef(ctx context.Context, orderRef string) ([]Commission, error) {
	var commissions []Commission
	err := s.db.SelectContext(ctx, &commissions, sqlListCommissionsByOrderRef, orderRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions by order: %w", err)
	}
	return commissions, nil
}

const sqlListChildCommissions = `
SELECT ` + commissionColumns + `
FROM commissions
WHERE parent_commission_id = $1
ORDER BY kind ASC
`

// ListChildCommissions retrieves the upline bonuses attached to a sale
func (s *Store) ListChildCommissions(ctx context.Context, parentID uuid.UUID) ([]Commission, error) {
	var commissions []Commission
	err := s.db.SelectContext(ctx, &commissions, sqlListChildCommissions, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child commissions: %w", err)
	}
	return commissions, nil
}

const sqlListCommissionsByAffiliate = `
SELECT ` + commissionColumns + `
FROM commissions
WHERE affiliate_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3
`

// ListCommissionsByAffiliate retrieves an affiliate's commissions newest
// first, optionally filtered by status
func (s *Store) ListCommissionsByAffiliate(ctx context.Context, affiliateID uuid.UUID, status string, limit int) ([]Commission, error) {
	var commissions []Commission
	err := s.db.SelectContext(ctx, &commissions, sqlListCommissionsByAffiliate, affiliateID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return commissions, nil
}

const sqlListPayableCommissions = `
SELECT ` + commissionColumns + `
FROM commissions c
WHERE c.affiliate_id = $1
  AND c.status = 'confirmed'
  AND NOT EXISTS (
    SELECT 1
    FROM payout_request_commissions prc
    JOIN payout_requests pr ON pr.id = prc.payout_request_id
    WHERE prc.commission_id = c.id AND pr.status IN ('pending', 'processing')
  )
ORDER BY c.created_at ASC, c.id ASC
`

// ListPayableCommissions retrieves confirmed commissions not already claimed
// by an open payout request
func (s *Store) ListPayableCommissions(ctx context.Context, affiliateID uuid.UUID) ([]Commission, error) {
	var commissions []Commission
	err := s.db.SelectContext(ctx, &commissions, sqlListPayableCommissions, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payable commissions: %w", err)
	}
	return commissions, nil
}

const sqlTransitionCommission = `
UPDATE commissions
SET status = $3,
    confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4 ELSE confirmed_at END,
    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND status = $2
RETURNING ` + commissionColumns

// TransitionCommission moves a commission from one status to another. It
// returns ErrConflict when the commission is not in the from status.
func (s *Store) TransitionCommission(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (Commission, error) {
	var commission Commission
	err := s.db.GetContext(ctx, &commission, sqlTransitionCommission, id, from, to, at)
	if err != nil {
		if notFound(err) {
			return Commission{}, ErrConflict
		}
		return Commission{}, fmt.Errorf("failed to transition commission: %w", err)
	}
	return commission, nil
}

const sqlMarkCommissionPaid = `
UPDATE commissions
SET status = 'paid', paid_at = $4, payout_request_id = $3, updated_at = CURRENT_TIMESTAMP
WHERE id = $1 AND affiliate_id = $2 AND status = 'confirmed'
RETURNING ` + commissionColumns

// MarkCommissionPaid settles a confirmed commission owned by the affiliate.
// It returns ErrConflict otherwise.
func (s *Store) MarkCommissionPaid(ctx context.Context, id, affiliateID, payoutRequestID uuid.UUID, at time.Time) (Commission, error) {
	var commission Commission
	err := s.db.GetContext(ctx, &commission, sqlMarkCommissionPaid, id, affiliateID, payoutRequestID, at)
	if err != nil {
		if notFound(err) {
			return Commission{}, ErrConflict
		}
		return Commission{}, fmt.Errorf("failed to mark commission paid: %w", err)
	}
	return commission, nil
}

const sqlSumCommissions = `
SELECT
  COALESCE(SUM(amount) FILTER (WHERE status IN ('confirmed', 'paid')), 0) AS earned,
  COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0) AS paid
FROM commissions
WHERE affiliate_id = $1
`

// SumCommissions totals an affiliate's ledger
func (s *Store) SumCommissions(ctx context.Context, affiliateID uuid.UUID) (CommissionTotals, error) {
	var totals CommissionTotals
	err := s.db.GetContext(ctx, &totals, sqlSumCommissions, affiliateID)
	if err != nil {
		return CommissionTotals{}, fmt.Errorf("failed to sum commissions: %w", err)
	}
	return totals, nil
}
