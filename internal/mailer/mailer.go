// Package mailer delivers report emails over SMTP.
package mailer

import (
	"errors"
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"
)

// Message is one outgoing report email. The attachment is held in memory;
// nothing is written to disk.
type Message struct {
	Subject        string
	HTMLBody       string
	Attachment     []byte
	AttachmentName string
}

// Sender defines the mail transport contract the jobs depend on.
type Sender interface {
	Send(msg Message) error
}

// Compile-time interface check
var _ Sender = (*SMTPSender)(nil)

// SMTPSender sends mail through an SMTP relay with STARTTLS.
type SMTPSender struct {
	dialer     *gomail.Dialer
	sender     string
	recipients []string
}

// NewSMTPSender validates the transport settings and returns a sender.
func NewSMTPSender(host string, port int, username, password, sender string, recipients []string) (*SMTPSender, error) {
	if host == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if sender == "" {
		return nil, errors.New("mailer: sender address is required")
	}
	if len(recipients) == 0 {
		return nil, errors.New("mailer: at least one recipient is required")
	}
	return &SMTPSender{
		dialer:     gomail.NewDialer(host, port, username, password),
		sender:     sender,
		recipients: recipients,
	}, nil
}

// Send delivers the message to every configured recipient.
func (s *SMTPSender) Send(msg Message) error {
	m, err := buildMessage(s.sender, s.recipients, msg)
	if err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// buildMessage assembles the MIME message. Split out so tests can inspect
// the result without an SMTP server.
func buildMessage(sender string, recipients []string, msg Message) (*gomail.Message, error) {
	if msg.Subject == "" {
		return nil, errors.New("mailer: subject is required")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", sender)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	if len(msg.Attachment) > 0 {
		if msg.AttachmentName == "" {
			return nil, errors.New("mailer: attachment requires a filename")
		}
		payload := msg.Attachment
		m.Attach(msg.AttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(payload)
			return err
		}))
	}

	return m, nil
}
