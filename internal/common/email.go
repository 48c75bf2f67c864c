package common

// EmailSender delivers transactional mail such as verification codes and
// order receipts.
type EmailSender interface {
	Send(to, subject, html string) error
}

// InMemoryEmail captures outgoing mail for tests instead of delivering it.
type InMemoryEmail struct {
	Outbox []Email
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send appends the message to the outbox.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender discards everything; used when SMTP is not configured.
type NopEmailSender struct{}

// Send drops the message.
func (NopEmailSender) Send(string, string, string) error { return nil }
