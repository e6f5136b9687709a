package processor

import (
	"commission-engine/internal/store"
	"context"

	"github.com/google/uuid"
)

// AffiliateLookup resolves the affiliate owned by an authenticated user
type AffiliateLookup interface {
	GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (store.Affiliate, error)
}
