package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendEmailService implements EmailService using Resend
type ResendEmailService struct {
	client *resend.Client
	config *EmailConfig
	logger *zap.Logger
}

// NewResendEmailService creates a new Resend email service
func NewResendEmailService(config *EmailConfig, logger *zap.Logger) (*ResendEmailService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	if config.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	return &ResendEmailService{
		client: resend.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}, nil
}

func (s *ResendEmailService) SendVerificationEmail(ctx context.Context, to, verificationURL string) error {
	return s.send(ctx, to, "Verify your email for AI Sentinel", VerificationEmailTemplate(verificationURL))
}

func (s *ResendEmailService) SendSignInNotice(ctx context.Context, to, userAgent string) error {
	return s.send(ctx, to, "New sign-in to AI Sentinel", SignInNoticeTemplate(to, userAgent))
}

func (s *ResendEmailService) send(ctx context.Context, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail),
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Error("failed to send email", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject), zap.String("id", sent.Id))
	return nil
}
