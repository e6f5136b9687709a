package processor

import (
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/email"
	"commission-engine/internal/store"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStore is the subset of store.Repository payouts read outside of
// transactions
type PayoutStore interface {
	InTx(ctx context.Context, fn func(store.Repository) error) error
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error)
	GetPayoutRequestByID(ctx context.Context, id uuid.UUID) (store.PayoutRequest, error)
	GetOpenPayoutRequestByAffiliate(ctx context.Context, affiliateID uuid.UUID) (store.PayoutRequest, error)
	ListPayoutRequestsByStatus(ctx context.Context, status string, limit int) ([]store.PayoutRequest, error)
	ListPayoutRequestCommissionIDs(ctx context.Context, payoutRequestID uuid.UUID) ([]uuid.UUID, error)
	FailPayoutRequest(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	CreateLedgerHalt(ctx context.Context, reason string, affiliateID *uuid.UUID) (store.LedgerHalt, error)
}

// Settler marks commissions paid inside the payout's transaction
type Settler interface {
	SettleInTx(ctx context.Context, tx store.Repository, affiliateID uuid.UUID, commissionIDs []uuid.UUID, payoutRequestID uuid.UUID) (commissionsProcessor.SettleResult, error)
}

// TransferRequest moves money to an affiliate's connected account
type TransferRequest struct {
	Destination    string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// Provider sends funds. It returns the provider's transfer id.
type Provider interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

// EventPublisher emits payout events
type EventPublisher interface {
	PublishPayoutSettled(ctx context.Context, request store.PayoutRequest, commissionIDs []uuid.UUID) error
}

var _ Notifier = (*email.EmailService)(nil)

// Notifier sends affiliate payout e-mails
type Notifier interface {
	SendPayoutSettledEmail(ctx context.Context, to string, data email.TemplateData) error
	SendPayoutFailedEmail(ctx context.Context, to string, data email.TemplateData) error
}
