package email

import (
	"bytes"
	"commission-engine/internal/observability"
	"context"
	"errors"
	"fmt"
	"html/template"
)

var (
	ErrInvalidEmailAddress = errors.New("invalid email address")
	ErrSendingEmail        = errors.New("error sending email")
	ErrEmptyTemplate       = errors.New("email template is empty")
)

const (
	TemplatePayoutSettled = "payout_settled"
	TemplatePayoutFailed  = "payout_failed"
)

// MailClient delivers a rendered message. *mail.ResendClient satisfies it.
type MailClient interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

// EmailService renders and sends affiliate notifications
type EmailService struct {
	mailClient    MailClient
	logger        *observability.Logger
	defaultSender string
	dashboardURL  string
	templates     map[string]*template.Template
}

// TemplateData represents the data that can be used in templates
type TemplateData struct {
	AffiliateCode   string
	Amount          string
	Currency        string
	CommissionCount int
	Reference       string
	Reason          string
	DashboardURL    string
}

var templateSources = map[string]string{
	TemplatePayoutSettled: `
	<html>
		<body>
			<h1>Your payout is on its way</h1>
			<p>Hi {{.AffiliateCode}},</p>
			<p>We sent <strong>{{.Amount}} {{.Currency}}</strong> covering {{.CommissionCount}} commission(s).</p>
			<p>Transfer reference: {{.Reference}}</p>
			<p><a href="{{.DashboardURL}}">View your earnings</a></p>
		</body>
	</html>
	`,
	TemplatePayoutFailed: `
	<html>
		<body>
			<h1>We could not send your payout</h1>
			<p>Hi {{.AffiliateCode}},</p>
			<p>Your payout of <strong>{{.Amount}} {{.Currency}}</strong> failed: {{.Reason}}</p>
			<p>Your commissions are untouched. Please check your payout details and request again.</p>
			<p><a href="{{.DashboardURL}}">Update payout details</a></p>
		</body>
	</html>
	`,
}

// New creates a new EmailService
func New(mailClient MailClient, defaultSender, webAppURI string, logger *observability.Logger) *EmailService {
	templates := make(map[string]*template.Template, len(templateSources))
	for name, src := range templateSources {
		templates[name] = template.Must(template.New(name).Parse(src))
	}
	return &EmailService{
		mailClient:    mailClient,
		logger:        logger,
		defaultSender: defaultSender,
		dashboardURL:  webAppURI + "/affiliate/earnings",
		templates:     templates,
	}
}

// renderTemplate renders a template with the provided data
func (s *EmailService) renderTemplate(templateName string, data TemplateData) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// SendPayoutSettledEmail tells an affiliate their payout was transferred
func (s *EmailService) SendPayoutSettledEmail(ctx context.Context, to string, data TemplateData) error {
	return s.send(ctx, TemplatePayoutSettled, to, "Your payout has been sent", data)
}

// SendPayoutFailedEmail tells an affiliate their payout could not be sent
func (s *EmailService) SendPayoutFailedEmail(ctx context.Context, to string, data TemplateData) error {
	return s.send(ctx, TemplatePayoutFailed, to, "Your payout could not be sent", data)
}

func (s *EmailService) send(ctx context.Context, templateName, to, subject string, data TemplateData) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "email_type", Value: templateName},
		observability.Field{Key: "recipient", Value: to},
	)

	if to == "" {
		s.logger.Error(ctx, "missing recipient", ErrInvalidEmailAddress)
		return ErrInvalidEmailAddress
	}
	if data.DashboardURL == "" {
		data.DashboardURL = s.dashboardURL
	}

	htmlContent, err := s.renderTemplate(templateName, data)
	if err != nil {
		s.logger.Error(ctx, "failed to render email template", err)
		return fmt.Errorf("%w: %s", ErrEmptyTemplate, err.Error())
	}

	if _, err := s.mailClient.SendEmail(ctx, s.defaultSender, to, subject, htmlContent); err != nil {
		s.logger.Error(ctx, "failed to send email", err)
		return fmt.Errorf("%w: %s", ErrSendingEmail, err.Error())
	}

	return nil
}
