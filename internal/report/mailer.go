package report

import (
	"io"

	"gopkg.in/gomail.v2"
)

// SMTPMailer sends the report over SMTP with STARTTLS.
type SMTPMailer struct {
	dialer    *gomail.Dialer
	sender    string
	recipient string
}

// NewSMTPMailer creates a mailer. The sender falls back to the SMTP username
// when not set separately.
func NewSMTPMailer(host string, port int, username, password, sender, recipient string) *SMTPMailer {
	if sender == "" {
		sender = username
	}
	return &SMTPMailer{
		dialer:    gomail.NewDialer(host, port, username, password),
		sender:    sender,
		recipient: recipient,
	}
}

func (m *SMTPMailer) Send(subject, body, attachmentName string, attachment []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.sender)
	msg.SetHeader("To", m.recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if len(attachment) > 0 {
		msg.Attach(attachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(attachment)
			return err
		}))
	}
	return m.dialer.DialAndSend(msg)
}
