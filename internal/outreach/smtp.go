package outreach

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/podium-performance/funnel-cli/internal/config"
)

// Sender delivers rescue emails over SMTP. With no host configured it
// stays disabled and callers fall back to printing the message.
type Sender struct {
	cfg  config.SMTPConfig
	send func(*gomail.Message) error
}

// NewSender creates an SMTP sender from config.
func NewSender(cfg config.SMTPConfig) *Sender {
	s := &Sender{cfg: cfg}
	s.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
		return d.DialAndSend(m)
	}
	return s
}

// Enabled reports whether SMTP delivery is configured.
func (s *Sender) Enabled() bool {
	return s.cfg.Host != "" && s.cfg.From != ""
}

// Send delivers one plain-text email.
func (s *Sender) Send(to, subject, body string) error {
	if !s.Enabled() {
		return eris.New("outreach: smtp is not configured")
	}
	if to == "" {
		return eris.New("outreach: recipient address is empty")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.send(m); err != nil {
		return eris.Wrapf(err, "outreach: send email to %s", to)
	}
	zap.L().Info("outreach: email sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
