package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"

	"github.com/tendant/listings-idm/pkg/auth"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService delivers auth messages over SMTP.
type EmailService struct {
	config   EmailConfig
	sendMail sendFunc
}

func NewEmailService(config EmailConfig) *EmailService {
	return &EmailService{config: config, sendMail: smtp.SendMail}
}

var _ auth.Mailer = (*EmailService)(nil)

var errHeaderInjection = errors.New("notification: header value contains a line break")

// Send implements auth.Mailer.
func (s *EmailService) Send(ctx context.Context, m auth.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.buildMessage(m)
	if err != nil {
		return err
	}

	var a smtp.Auth
	if s.config.User != "" {
		a = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, a, s.config.From, []string{m.To}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", addr, err)
	}
	return nil
}

func (s *EmailService) buildMessage(m auth.Message) ([]byte, error) {
	for _, v := range []string{m.To, m.Subject, s.config.From, s.config.FromName} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, errHeaderInjection
		}
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, m.To, mime.QEncoding.Encode("utf-8", m.Subject), m.HTMLBody)
	return []byte(msg), nil
}

// LogMailer records that a message was dropped. It is used when no SMTP
// relay is configured. The body is never logged since it holds reset links.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

var _ auth.Mailer = (*LogMailer)(nil)

// Send implements auth.Mailer.
func (l *LogMailer) Send(ctx context.Context, m auth.Message) error {
	l.logger.InfoContext(ctx, "email not sent, smtp disabled",
		"to", m.To,
		"subject", m.Subject,
	)
	return nil
}
