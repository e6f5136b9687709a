package mail

import (
	"commission-engine/internal/observability"
	"context"
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"
)

// ErrNoRecipient is returned when a message has no destination address
var ErrNoRecipient = errors.New("email has no recipient")

// ResendClient delivers rendered notifications through Resend
type ResendClient struct {
	client *resend.Client
	logger *observability.Logger
}

// NewResendClient creates a client for apiKey, which must not be empty
func NewResendClient(apiKey string, logger *observability.Logger) (*ResendClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is empty")
	}
	client := resend.NewClient(apiKey)
	if client == nil {
		return nil, fmt.Errorf("failed to create Resend client")
	}

	return &ResendClient{
		client: client,
		logger: logger,
	}, nil
}

// SendEmail sends one HTML message and returns Resend's message id
func (c *ResendClient) SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error) {
	if to == "" {
		return "", ErrNoRecipient
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "email_to", Value: to},
		observability.Field{Key: "email_subject", Value: subject},
	)

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlContent,
	}

	res, err := c.client.Emails.Send(params)
	if err != nil {
		c.logger.Error(ctx, "failed to send email", err)
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "email_id", Value: res.Id})
	c.logger.Info(ctx, "email sent successfully")
	return res.Id, nil
}
