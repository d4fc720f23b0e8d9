package push

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"medbrief/internal/store"
)

// Email delivers deck notifications over SMTP.
type Email struct {
	addr string
	auth smtp.Auth
	from string
}

// NewEmail creates an email notifier. host and port identify the SMTP relay.
func NewEmail(host string, port int, username, password, from string) *Email {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &Email{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

func (e *Email) Name() string           { return "email" }
func (e *Email) Channel() store.Channel { return store.ChannelEmail }

func (e *Email) Send(ctx context.Context, d *Delivery) error {
	if len(d.Recipients) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(d.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: [MedBrief] %s deck update\r\n", d.TopicName)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "A new slide deck was generated for %q: %s\r\n", d.TopicName, d.PPTFilename)
	if d.PreviewLink != "" {
		fmt.Fprintf(&b, "Preview: %s\r\n", d.PreviewLink)
	}
	if d.DiffSummary != "" {
		fmt.Fprintf(&b, "\r\nChanges since the previous deck:\r\n%s\r\n", d.DiffSummary)
	}

	if err := smtp.SendMail(e.addr, e.auth, e.from, d.Recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
