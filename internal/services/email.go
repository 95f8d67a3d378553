package services

import (
	"fmt"
	"html"
	"net/smtp"

	"github.com/dimitrije/communities/internal/config"
)

type EmailService struct {
	cfg config.SMTPConfig
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

func (s *EmailService) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != "" && s.cfg.From != ""
}

func (s *EmailService) Send(to, subject, body string) error {
	if !s.IsConfigured() {
		return nil
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, s.message(to, subject, body))
}

func (s *EmailService) message(to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.cfg.From, to, subject, body))
}

// SendAlert mails an operational failure to the administrator.
func (s *EmailService) SendAlert(to, component, detail string) error {
	subject := fmt.Sprintf("[communities] %s failure", component)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>%s reported an error</h2>
			<pre>%s</pre>
		</body>
		</html>
	`, html.EscapeString(component), html.EscapeString(detail))

	return s.Send(to, subject, body)
}
