package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrMailUnavailable = errors.New("mail service temporarily unavailable")

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type SMTPSender struct {
	cfg  SMTPConfig
	log  *zap.Logger
	cb   *gobreaker.CircuitBreaker
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	settings := gobreaker.Settings{
		Name:        "SMTP",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &SMTPSender{
		cfg:  cfg,
		log:  logger,
		cb:   gobreaker.NewCircuitBreaker(settings),
		send: smtp.SendMail,
	}
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, link string) error {
	return s.deliver(ctx, to, "Reset your ChinaSource password",
		fmt.Sprintf(`<p>We received a request to reset your password.</p><p><a href="%s">Choose a new password</a></p><p>If you did not ask for this, ignore this email.</p>`, html.EscapeString(link)))
}

func (s *SMTPSender) SendConfirmation(ctx context.Context, to, link string) error {
	return s.deliver(ctx, to, "Confirm your ChinaSource account",
		fmt.Sprintf(`<p>Welcome to ChinaSource.</p><p><a href="%s">Confirm your email address</a></p>`, html.EscapeString(link)))
}

func (s *SMTPSender) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := []byte("From: " + s.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n" +
		body)
	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.send(addr, auth, s.cfg.From, []string{to}, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.log.Warn("mail: breaker open, dropping message", zap.String("to", to))
		return ErrMailUnavailable
	}
	if err != nil {
		s.log.Error("mail: send failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}
	s.log.Info("mail: sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
