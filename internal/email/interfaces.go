package email

import (
	"context"
)

// EmailSender defines the notifications the engine sends
type EmailSender interface {
	// SendPayoutSettledEmail confirms a completed transfer
	SendPayoutSettledEmail(ctx context.Context, to string, data TemplateData) error

	// SendPayoutFailedEmail reports a transfer the provider rejected
	SendPayoutFailedEmail(ctx context.Context, to string, data TemplateData) error
}

var _ EmailSender = (*EmailService)(nil)
