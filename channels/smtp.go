package channels

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/mail.v2"
)

// SMTPSettings holds what's needed to send email through an SMTP relay.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPTransport is a MailTransport that dials the relay for every message.
type SMTPTransport struct {
	settings SMTPSettings
}

// NewSMTPTransport returns a new SMTP transport.
func NewSMTPTransport(settings SMTPSettings) (*SMTPTransport, error) {
	if settings.Host == "" {
		return nil, errors.New("smtp host is empty")
	}
	if settings.From == "" {
		return nil, errors.New("sender address is empty")
	}
	return &SMTPTransport{settings: settings}, nil
}

// buildMessage converts a Mail into a mail.v2 message.
func (s *SMTPTransport) buildMessage(m Mail) *mail.Message {
	message := mail.NewMessage()

	message.SetHeader("From", s.settings.From)
	message.SetHeader("To", m.To)
	message.SetHeader("Subject", m.Subject)

	message.SetBody("text/plain", m.Text)
	if m.HTML != "" {
		message.AddAlternative("text/html", m.HTML)
	}

	for _, a := range m.Attachments {
		data := a.Data
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		message.Attach(a.Name, settings...)
	}

	return message
}

// Send delivers one message. The dial timeout follows the context deadline when there is one.
func (s *SMTPTransport) Send(ctx context.Context, m Mail) error {
	dialer := mail.NewDialer(s.settings.Host, s.settings.Port, s.settings.Username, s.settings.Password)
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Timeout = time.Until(deadline)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrapf(dialer.DialAndSend(s.buildMessage(m)), "unable to send email to %s", m.To)
}
