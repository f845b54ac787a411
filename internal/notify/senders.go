package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/util"

	"go.uber.org/zap"
)

// SMTPSender sends notification e-mails through a plain SMTP relay
type SMTPSender struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new e-mail sender
func NewSMTPSender(host, port, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, from: from, send: smtp.SendMail}
}

func (s *SMTPSender) Channel() string {
	return models.ChannelEmail
}

func (s *SMTPSender) Send(ctx context.Context, to models.User, n *models.Notification) error {
	if to.Email == "" {
		return fmt.Errorf("user %d has no e-mail address", to.ID)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		s.from, to.Email, n.Title, n.Message)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to.Email}, []byte(msg))
}

// LogSMSSender records SMS deliveries in the log. No SMS provider is integrated.
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender creates a new log-only SMS sender
func NewLogSMSSender() *LogSMSSender {
	return &LogSMSSender{logger: util.Named("sms")}
}

func (s *LogSMSSender) Channel() string {
	return models.ChannelSMS
}

func (s *LogSMSSender) Send(ctx context.Context, to models.User, n *models.Notification) error {
	if to.Phone == "" {
		return fmt.Errorf("user %d has no phone number", to.ID)
	}
	s.logger.Info("SMS notification",
		zap.Int64("user_id", to.ID),
		zap.String("phone", to.Phone),
		zap.String("title", n.Title))
	return nil
}
