package processor

import (
	"commission-engine/internal/store"
	"context"

	"github.com/google/uuid"
)

// RewardStore defines the database operations required by RewardProcessor
type RewardStore interface {
	InTx(ctx context.Context, fn func(store.Repository) error) error
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error)
	ListRewardPointsHistory(ctx context.Context, affiliateID uuid.UUID, limit int) ([]store.RewardPointsEntry, error)
	SumRewardPointsBySource(ctx context.Context, affiliateID uuid.UUID) (map[string]int64, error)
}
