package processor

import (
	"commission-engine/internal/store"
	"context"

	"github.com/google/uuid"
)

// AffiliateStore is the subset of store.Repository the affiliate registry uses
type AffiliateStore interface {
	InTx(ctx context.Context, fn func(store.Repository) error) error
	CreateAffiliate(ctx context.Context, params store.CreateAffiliateParams) (store.Affiliate, error)
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error)
	GetAffiliateByCode(ctx context.Context, code string) (store.Affiliate, error)
	GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (store.Affiliate, error)
	ListAffiliates(ctx context.Context) ([]store.Affiliate, error)
	UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateAffiliatePayoutDetails(ctx context.Context, id uuid.UUID, payoutEmail *string, stripeAccountID *string) error
	GetDiscountCodeByAffiliate(ctx context.Context, affiliateID uuid.UUID) (store.DiscountCode, error)
}

// AffiliateLookup resolves affiliates by id. Both the store and a
// transaction-scoped repository satisfy it.
type AffiliateLookup interface {
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error)
}
