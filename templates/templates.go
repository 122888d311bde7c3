// Package templates renders notification events into channel-specific content. Rendering is pure: the same
// event can be rendered once per channel without any shared state.
package templates

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/cyverse-de/helpdesk-notifier/common"
	"github.com/cyverse-de/helpdesk-notifier/model"
)

// SummaryLimit is the maximum number of characters of free text included in chat and in-app content.
const SummaryLimit = 200

// EmailContent is a rendered email.
type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}

// InAppContent is a rendered in-app feed entry.
type InAppContent struct {
	Title   string
	Message string
}

type detail struct {
	Label string
	Value string
}

// content is the channel-independent rendering of one event.
type content struct {
	Title   string
	Lead    string
	Details []detail
	Body    string
}

const emailLayout = `<!DOCTYPE html>
<html>
<body>
<h2>{{.Title}}</h2>
<p>{{.Lead}}</p>
{{- if .Details}}
<table>
{{- range .Details}}
<tr><td>{{.Label}}</td><td><strong>{{.Value}}</strong></td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Body}}
<p style="white-space: pre-wrap">{{.Body}}</p>
{{- end}}
</body>
</html>
`

// Renderer maps events to channel content. In strict mode an unknown kind is an error; otherwise a generic
// message is rendered.
type Renderer struct {
	Strict bool
	layout *template.Template
}

// New returns a new renderer.
func New(strict bool) *Renderer {
	return &Renderer{
		Strict: strict,
		layout: template.Must(template.New("email").Parse(emailLayout)),
	}
}

func ticketRef(p model.Payload) string {
	if id := p.String("ticket_id"); id != "" {
		return " #" + id
	}
	return ""
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// compose builds the channel-independent content for an event.
func (r *Renderer) compose(kind model.EventKind, p model.Payload) (content, error) {
	switch kind {
	case model.KindNewTicket:
		return content{
			Title: "New ticket: " + p.String("ticket_title"),
			Lead:  fmt.Sprintf("%s opened ticket%s.", fallback(p.String("client_name"), "A client"), ticketRef(p)),
			Body:  p.String("message"),
		}, nil

	case model.KindTicketMessage:
		return content{
			Title: "New message on ticket: " + p.String("ticket_title"),
			Lead:  fmt.Sprintf("%s replied on ticket%s.", fallback(p.String("sender_name"), "Someone"), ticketRef(p)),
			Body:  p.String("message"),
		}, nil

	case model.KindTicketStatus:
		return content{
			Title: "Ticket status changed: " + p.String("ticket_title"),
			Lead:  fmt.Sprintf("Ticket%s is now %s.", ticketRef(p), fallback(p.String("status"), "updated")),
		}, nil

	case model.KindNewInvoice:
		c := content{
			Title: strings.TrimSpace("New invoice " + p.String("invoice_number")),
			Lead:  "A new invoice has been issued to you.",
		}
		if amount := strings.TrimSpace(p.String("amount") + " " + p.String("currency")); amount != "" {
			c.Details = append(c.Details, detail{Label: "Amount", Value: amount})
		}
		if date := p.String("date"); date != "" {
			c.Details = append(c.Details, detail{Label: "Date", Value: date})
		}
		return c, nil

	case model.KindNewRecommendation:
		return content{
			Title: "New recommendation: " + p.String("title"),
			Lead:  "You have a new recommendation.",
			Body:  p.String("message"),
		}, nil

	default:
		if r.Strict {
			return content{}, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
		}
		return content{
			Title: "Notification",
			Lead:  "You have a new notification.",
		}, nil
	}
}

// InApp renders the title and message of an in-app feed entry. Free text is truncated.
func (r *Renderer) InApp(kind model.EventKind, p model.Payload) (InAppContent, error) {
	c, err := r.compose(kind, p)
	if err != nil {
		return InAppContent{}, err
	}

	message := c.Lead
	if c.Body != "" {
		message += "\n" + common.Truncate(c.Body, SummaryLimit)
	}
	return InAppContent{Title: c.Title, Message: message}, nil
}

// Telegram renders a message using Telegram's HTML parse mode. Free text is truncated.
func (r *Renderer) Telegram(kind model.EventKind, p model.Payload) (string, error) {
	c, err := r.compose(kind, p)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(c.Title) + "</b>\n")
	b.WriteString(html.EscapeString(c.Lead))
	for _, d := range c.Details {
		b.WriteString("\n" + html.EscapeString(d.Label) + ": <b>" + html.EscapeString(d.Value) + "</b>")
	}
	if c.Body != "" {
		b.WriteString("\n\n<i>" + html.EscapeString(common.Truncate(c.Body, SummaryLimit)) + "</i>")
	}
	return b.String(), nil
}

// Email renders the subject, plain text and HTML bodies of an email. Free text is included in full.
func (r *Renderer) Email(kind model.EventKind, p model.Payload) (EmailContent, error) {
	c, err := r.compose(kind, p)
	if err != nil {
		return EmailContent{}, err
	}
	return r.email(c)
}

// VerificationEmail renders the message carrying an email verification code.
func (r *Renderer) VerificationEmail(code string) (EmailContent, error) {
	return r.email(content{
		Title:   "Confirm your email address",
		Lead:    "Use this code to confirm your email address for helpdesk notifications.",
		Details: []detail{{Label: "Code", Value: code}},
	})
}

func (r *Renderer) email(c content) (EmailContent, error) {
	lines := []string{c.Lead}
	if len(c.Details) > 0 {
		lines = append(lines, "")
		for _, d := range c.Details {
			lines = append(lines, d.Label+": "+d.Value)
		}
	}
	if c.Body != "" {
		lines = append(lines, "", c.Body)
	}

	var buf bytes.Buffer
	if err := r.layout.Execute(&buf, c); err != nil {
		return EmailContent{}, fmt.Errorf("execute email template: %w", err)
	}

	return EmailContent{
		Subject: c.Title,
		Text:    strings.Join(lines, "\n"),
		HTML:    buf.String(),
	}, nil
}
