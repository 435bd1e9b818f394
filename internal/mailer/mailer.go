package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"oceanstella/api/internal/config"
)

const verificationSubject = "Ocean Stella verification code"

var ErrNotConfigured = errors.New("smtp not configured")

// SMTPSender delivers verification codes over SMTP. Port 465 uses implicit
// TLS, other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	cfg     config.SMTPConfig
	codeTTL time.Duration
	send    func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPSender(cfg config.SMTPConfig, codeTTL time.Duration) *SMTPSender {
	s := &SMTPSender{cfg: cfg, codeTTL: codeTTL}
	s.send = s.dialAndSend
	return s
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, to, code string) error {
	if s.cfg.Host == "" {
		return ErrNotConfigured
	}
	msg, err := verificationMessage(s.cfg.Sender(), to, code, s.codeTTL)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func verificationMessage(from, to, code string, ttl time.Duration) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(verificationSubject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Your verification code is: %s\n\nThis code expires in %d minutes.",
		code, int(ttl.Minutes()),
	))
	return msg, nil
}

// LogSender writes codes to the log instead of sending them. Used in
// development when no SMTP server is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, to, code string) error {
	s.logger.Debug().Str("email", to).Str("code", code).Msg("verification code (smtp disabled)")
	return nil
}
