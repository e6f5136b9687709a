package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLedgerHalted is returned by money-moving operations while an
// unresolved halt exists.
var ErrLedgerHalted = errors.New("ledger halted pending reconciliation")

// EnsureNotHalted fails with ErrLedgerHalted when r has an active halt.
func EnsureNotHalted(ctx context.Context, r Repository) error {
	halt, err := r.GetActiveLedgerHalt(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrLedgerHalted, halt.Reason)
}

const sqlCreateLedgerHalt = `
INSERT INTO ledger_halts (reason, affiliate_id)
VALUES ($1, $2)
RETURNING id, affiliate_id, reason, created_at, resolved_at
`

// CreateLedgerHalt stops money-moving writes until resolved
func (s *Store) CreateLedgerHalt(ctx context.Context, reason string, affiliateID *uuid.UUID) (LedgerHalt, error) {
	var halt LedgerHalt
	err := s.db.GetContext(ctx, &halt, sqlCreateLedgerHalt, reason, affiliateID)
	if err != nil {
		return LedgerHalt{}, fmt.Errorf("failed to create ledger halt: %w", err)
	}
	return halt, nil
}

const sqlGetActiveLedgerHalt = `
SELECT id, affiliate_id, reason, created_at, resolved_at
FROM ledger_halts
WHERE resolved_at IS NULL
ORDER BY created_at ASC
LIMIT 1
`

// GetActiveLedgerHalt returns the oldest unresolved halt or ErrNotFound
func (s *Store) GetActiveLedgerHalt(ctx context.Context) (LedgerHalt, error) {
	var halt LedgerHalt
	err := s.db.GetContext(ctx, &halt, sqlGetActiveLedgerHalt)
	if err != nil {
		if notFound(err) {
			return LedgerHalt{}, ErrNotFound
		}
		return LedgerHalt{}, fmt.Errorf("failed to get ledger halt: %w", err)
	}
	return halt, nil
}

const sqlResolveLedgerHalt = `
UPDATE ledger_halts SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL
`

// ResolveLedgerHalt clears a halt after manual review
func (s *Store) ResolveLedgerHalt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.execOne(ctx, "resolve ledger halt", sqlResolveLedgerHalt, id, at)
}
