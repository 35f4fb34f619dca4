package account

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers verification codes to users. The SMS and email gateways
// are external services; in development the LogNotifier stands in for both.
type Notifier interface {
	SendSMSCode(ctx context.Context, phoneNumber, code string) error
	SendEmailCode(ctx context.Context, email, code string) error
}

// LogNotifier writes would-be notifications to the log instead of sending
// them, mirroring how local environments run without an SMS provider.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SendSMSCode logs the SMS payload.
func (n *LogNotifier) SendSMSCode(_ context.Context, phoneNumber, code string) error {
	n.logger.Info("sms verification code",
		zap.String("phone_number", phoneNumber),
		zap.String("code", code))
	return nil
}

// SendEmailCode logs the email payload.
func (n *LogNotifier) SendEmailCode(_ context.Context, email, code string) error {
	n.logger.Info("email verification code",
		zap.String("email", email),
		zap.String("code", code))
	return nil
}
