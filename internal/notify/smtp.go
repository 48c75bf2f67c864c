package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers mail over plain SMTP with optional auth.
type SMTPSender struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// Send implements common.EmailSender.
func (s SMTPSender) Send(to, subject, body string) error {
	if strings.TrimSpace(s.Host) == "" {
		return nil
	}
	addr := s.Host + ":" + s.Port
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		s.From, to, subject, body)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg))
}
