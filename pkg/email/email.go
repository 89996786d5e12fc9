package email

import (
	"context"

	"go.uber.org/zap"
)

// EmailService delivers the messages of the sign-in flow.
type EmailService interface {
	// SendVerificationEmail sends the link that hands a verified session
	// back to the web app.
	SendVerificationEmail(ctx context.Context, to, verificationURL string) error

	// SendSignInNotice tells a user a new session was opened for them.
	SendSignInNotice(ctx context.Context, to, userAgent string) error
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// LogEmailService logs messages instead of sending them. Used when delivery
// is disabled.
type LogEmailService struct {
	logger *zap.Logger
}

func NewLogEmailService(logger *zap.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendVerificationEmail(ctx context.Context, to, verificationURL string) error {
	s.logger.Info("verification email suppressed", zap.String("to", to), zap.String("url", verificationURL))
	return nil
}

func (s *LogEmailService) SendSignInNotice(ctx context.Context, to, userAgent string) error {
	s.logger.Info("sign-in notice suppressed", zap.String("to", to), zap.String("user_agent", userAgent))
	return nil
}
