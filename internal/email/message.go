// Package email defines the outbound email built when a fetched message is
// forwarded to another mailbox.
package email

import (
	"fmt"
	"strings"

	"github.com/shineum/tempmail-poller/internal/mailtm"
)

// SourceHeader carries the provider message id on forwarded mail.
const SourceHeader = "X-Mailtm-Message-Id"

// Email is a forwarded copy of a fetched message.
type Email struct {
	From     string
	To       []string
	ReplyTo  string
	Subject  string
	TextBody string
	HtmlBody string

	// SourceID is the provider id of the original message.
	SourceID string
}

// Forward builds the email that relays msg from sender to recipients.
// The original sender becomes Reply-To.
func Forward(msg *mailtm.Message, sender string, recipients []string) *Email {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	return &Email{
		From:     sender,
		To:       recipients,
		ReplyTo:  msg.From.Address,
		Subject:  subject,
		TextBody: msg.Text,
		HtmlBody: strings.Join(msg.HTML, "\n"),
		SourceID: msg.ID,
	}
}

// Summary is a one-line description used in logs.
func (e *Email) Summary() string {
	return fmt.Sprintf("%s -> %s: %s", e.ReplyTo, strings.Join(e.To, ", "), e.Subject)
}
