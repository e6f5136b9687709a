package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const annualPotColumns = `id, year, total_amount, distributed, distribution_date, created_at, updated_at`

const sqlAddToAnnualPot = `
INSERT INTO annual_pots (year, total_amount)
VALUES ($1, $2)
ON CONFLICT (year) DO UPDATE
SET total_amount = annual_pots.total_amount + EXCLUDED.total_amount,
    updated_at = CURRENT_TIMESTAMP
WHERE annual_pots.distributed = FALSE
`

// AddToAnnualPot accumulates into a year's pot. A distributed pot is
// immutable and returns ErrConflict.
func (s *Store) AddToAnnualPot(ctx context.Context, year int, delta decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, sqlAddToAnnualPot, year, delta)
	if err != nil {
		return fmt.Errorf("failed to add to annual pot: %w", err)
	}
	return requireOneRow(res)
}

const sqlCreatePotContribution = `
INSERT INTO annual_pot_contributions (year, commission_id, order_ref, amount, reason)
VALUES ($1, $2, $3, $4, $5)
`

// CreatePotContribution records the source of a pot inflow
func (s *Store) CreatePotContribution(ctx context.Context, params CreatePotContributionParams) error {
	_, err := s.db.ExecContext(ctx, sqlCreatePotContribution,
		params.Year,
		params.CommissionID,
		params.OrderRef,
		params.Amount,
		params.Reason)
	if err != nil {
		if uniqueViolation(err) {
			return fmt.Errorf("failed to create pot contribution: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create pot contribution: %w", err)
	}
	return nil
}

const sqlGetAnnualPot = `SELECT ` + annualPotColumns + ` FROM annual_pots WHERE year = $1`

// GetAnnualPot retrieves a year's pot
func (s *Store) GetAnnualPot(ctx context.Context, year int) (AnnualPot, error) {
	return s.getAnnualPot(ctx, sqlGetAnnualPot, year)
}

// GetAnnualPotForUpdate retrieves a year's pot and locks the row
func (s *Store) GetAnnualPotForUpdate(ctx context.Context, year int) (AnnualPot, error) {
	return s.getAnnualPot(ctx, sqlGetAnnualPot+` FOR UPDATE`, year)
}

func (s *Store) getAnnualPot(ctx context.Context, query string, year int) (AnnualPot, error) {
	var pot AnnualPot
	err := s.db.GetContext(ctx, &pot, query, year)
	if err != nil {
		if notFound(err) {
			return AnnualPot{}, ErrNotFound
		}
		return AnnualPot{}, fmt.Errorf("failed to get annual pot: %w", err)
	}
	return pot, nil
}

const sqlMarkAnnualPotDistributed = `
UPDATE annual_pots
SET distributed = TRUE, distribution_date = $2, updated_at = CURRENT_TIMESTAMP
WHERE year = $1 AND distributed = FALSE
`

// MarkAnnualPotDistributed flips the distributed flag once. It returns
// ErrConflict if the pot was already distributed.
func (s *Store) MarkAnnualPotDistributed(ctx context.Context, year int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, sqlMarkAnnualPotDistributed, year, at)
	if err != nil {
		return fmt.Errorf("failed to mark annual pot distributed: %w", err)
	}
	return requireOneRow(res)
}
