package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightmoor/memberpay/pkg/config"
	"github.com/brightmoor/memberpay/pkg/types"
)

// Service sends membership confirmation mail. Delivery is best effort: the
// activator dispatches it on a detached goroutine and only ever logs a
// failure. Nothing in the payment flow waits on SMTP.
type Service struct {
	cfg config.SMTPConfig
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg.SMTP, log: log}
}

func (s *Service) configured() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// SendActivationMail delivers the membership confirmation for a freshly
// activated user.
func (s *Service) SendActivationMail(to string, summary *types.MembershipSummary) error {
	if !s.configured() {
		s.log.Debugw("smtp not configured, skipping activation mail", "to", to)
		return nil
	}
	if to == "" {
		return fmt.Errorf("empty recipient")
	}

	subject := "Your membership is active"
	body := fmt.Sprintf("Hi %s,\r\n\r\nYour %s membership is now active.",
		displayName(summary), summary.Type)
	if summary.EndDate != nil {
		body += fmt.Sprintf(" It is valid until %s.", summary.EndDate.Format("2 January 2006"))
	}
	body += "\r\n\r\nThank you for your support."

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func displayName(summary *types.MembershipSummary) string {
	if summary != nil && summary.Name != "" {
		return summary.Name
	}
	return "there"
}
