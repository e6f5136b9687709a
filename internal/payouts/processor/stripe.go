package processor

import (
	"commission-engine/internal/observability"
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/transfer"
)

var ErrInvalidTransferAmount = errors.New("transfer amount must be positive")

// StripeProvider sends payouts as Stripe Connect transfers
type StripeProvider struct {
	logger *observability.Logger
}

// NewStripeProvider sets the Stripe key for the process
func NewStripeProvider(secretKey string, logger *observability.Logger) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{logger: logger}
}

// Transfer creates a transfer to req.Destination. Retries with the same
// IdempotencyKey return the original transfer.
func (s *StripeProvider) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "destination", Value: req.Destination},
		observability.Field{Key: "idempotency_key", Value: req.IdempotencyKey},
	)

	amount := req.Amount.Shift(2).Round(0).IntPart()
	if amount <= 0 {
		return "", ErrInvalidTransferAmount
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	t, err := transfer.New(params)
	if err != nil {
		s.logger.Error(ctx, "failed to create stripe transfer", err)
		return "", err
	}

	return t.ID, nil
}
