package mail

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers identity emails: password recovery and sign-up confirmation.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
	SendConfirmation(ctx context.Context, to, link string) error
}

// LogSender writes the links to the log instead of sending them. It is the
// default when no SMTP host is configured.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) SendPasswordReset(_ context.Context, to, link string) error {
	s.Log.Info("mail: password reset", zap.String("to", to), zap.String("link", link))
	return nil
}

func (s LogSender) SendConfirmation(_ context.Context, to, link string) error {
	s.Log.Info("mail: confirm email", zap.String("to", to), zap.String("link", link))
	return nil
}
