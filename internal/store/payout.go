package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const payoutRequestColumns = `id, affiliate_id, amount, currency, status, payout_email, external_id, error_message, notes, created_at, processed_at`

const sqlCreatePayoutRequest = `
INSERT INTO payout_requests (affiliate_id, amount, currency, payout_email, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + payoutRequestColumns

const sqlCreatePayoutRequestCommission = `
INSERT INTO payout_request_commissions (payout_request_id, commission_id)
VALUES ($1, $2)
`

// CreatePayoutRequest creates a pending request and links the commissions it
// aggregates. Call it inside InTx.
func (s *Store) CreatePayoutRequest(ctx context.Context, params CreatePayoutRequestParams) (PayoutRequest, error) {
	var request PayoutRequest
	err := s.db.GetContext(ctx, &request, sqlCreatePayoutRequest,
		params.AffiliateID,
		params.Amount,
		params.Currency,
		params.PayoutEmail,
		params.Notes)
	if err != nil {
		if uniqueViolation(err) {
			return PayoutRequest{}, fmt.Errorf("failed to create payout request: %w", ErrDuplicate)
		}
		return PayoutRequest{}, fmt.Errorf("failed to create payout request: %w", err)
	}

	for _, commissionID := range params.CommissionIDs {
		_, err := s.db.ExecContext(ctx, sqlCreatePayoutRequestCommission, request.ID, commissionID)
		if err != nil {
			return PayoutRequest{}, fmt.Errorf("failed to link payout commission: %w", err)
		}
	}
	return request, nil
}

const sqlGetPayoutRequestByID = `SELECT ` + payoutRequestColumns + ` FROM payout_requests WHERE id = $1`

// GetPayoutRequestByID retrieves a payout request by ID
func (s *Store) GetPayoutRequestByID(ctx context.Context, id uuid.UUID) (PayoutRequest, error) {
	var request PayoutRequest
	err := s.db.GetContext(ctx, &request, sqlGetPayoutRequestByID, id)
	if err != nil {
		if notFound(err) {
			return PayoutRequest{}, ErrNotFound
		}
		return PayoutRequest{}, fmt.Errorf("failed to get payout request: %w", err)
	}
	return request, nil
}

const sqlGetOpenPayoutRequestByAffiliate = `
SELECT ` + payoutRequestColumns + `
FROM payout_requests
WHERE affiliate_id = $1 AND status IN ('pending', 'processing')
ORDER BY created_at DESC
LIMIT 1
`

// GetOpenPayoutRequestByAffiliate retrieves an affiliate's pending or
// processing request
func (s *Store) GetOpenPayoutRequestByAffiliate(ctx context.Context, affiliateID uuid.UUID) (PayoutRequest, error) {
	var request PayoutRequest
	err := s.db.GetContext(ctx, &request, sqlGetOpenPayoutRequestByAffiliate, affiliateID)
	if err != nil {
		if notFound(err) {
			return PayoutRequest{}, ErrNotFound
		}
		return PayoutRequest{}, fmt.Errorf("failed to get open payout request: %w", err)
	}
	return request, nil
}

const sqlListPayoutRequestsByStatus = `
SELECT ` + payoutRequestColumns + `
FROM payout_requests
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2
`

// ListPayoutRequestsByStatus retrieves requests oldest first
func (s *Store) ListPayoutRequestsByStatus(ctx context.Context, status string, limit int) ([]PayoutRequest, error) {
	var requests []PayoutRequest
	err := s.db.SelectContext(ctx, &requests, sqlListPayoutRequestsByStatus, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout requests: %w", err)
	}
	return requests, nil
}

const sqlListPayoutRequestCommissionIDs = `
SELECT commission_id FROM payout_request_commissions WHERE payout_request_id = $1 ORDER BY commission_id
`

// ListPayoutRequestCommissionIDs retrieves the commissions a request covers
func (s *Store) ListPayoutRequestCommissionIDs(ctx context.Context, payoutRequestID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, sqlListPayoutRequestCommissionIDs, payoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout commissions: %w", err)
	}
	return ids, nil
}

const sqlTransitionPayoutRequest = `
UPDATE payout_requests SET status = $3 WHERE id = $1 AND status = $2
`

// TransitionPayoutRequest moves a request between statuses. It returns
// ErrConflict when the request is not in the from status.
func (s *Store) TransitionPayoutRequest(ctx context.Context, id uuid.UUID, from, to string) error {
	res, err := s.db.ExecContext(ctx, sqlTransitionPayoutRequest, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition payout request: %w", err)
	}
	return requireOneRow(res)
}

const sqlCompletePayoutRequest = `
UPDATE payout_requests
SET status = 'paid', external_id = $2, processed_at = $3, error_message = NULL
WHERE id = $1 AND status = 'processing'
`

// CompletePayoutRequest marks a processing request paid
func (s *Store) CompletePayoutRequest(ctx context.Context, id uuid.UUID, externalID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, sqlCompletePayoutRequest, id, externalID, at)
	if err != nil {
		return fmt.Errorf("failed to complete payout request: %w", err)
	}
	return requireOneRow(res)
}

const sqlFailPayoutRequest = `
UPDATE payout_requests
SET status = 'failed', error_message = $2, processed_at = $3
WHERE id = $1 AND status = 'processing'
`

// FailPayoutRequest marks a processing request failed
func (s *Store) FailPayoutRequest(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, sqlFailPayoutRequest, id, message, at)
	if err != nil {
		return fmt.Errorf("failed to fail payout request: %w", err)
	}
	return requireOneRow(res)
}
