// Package stdout implements a Sink that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/tempmail-poller/internal/mailtm"
)

// Output formats.
const (
	// FormatJSON prints the raw payload, one message per line.
	FormatJSON = "json"
	// FormatText prints a human-readable block.
	FormatText = "text"
)

// Sink prints fetched messages.
type Sink struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	format string
}

// New creates a stdout Sink writing in the given format.
// Unknown formats fall back to FormatJSON.
func New(format string) *Sink {
	return NewWithWriter(os.Stdout, format)
}

// NewWithWriter creates a Sink that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer, format string) *Sink {
	if format != FormatText {
		format = FormatJSON
	}
	return &Sink{writer: w, format: format}
}

// Report prints msg.
func (s *Sink) Report(_ context.Context, msg *mailtm.Message) error {
	var out string
	if s.format == FormatText {
		out = formatText(msg)
	} else {
		out = string(msg.Raw) + "\n"
	}

	if _, err := io.WriteString(s.writer, out); err != nil {
		return fmt.Errorf("failed to write message %s: %w", msg.ID, err)
	}
	return nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "stdout"
}

func formatText(msg *mailtm.Message) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "ID: %s\n", msg.ID)
	fmt.Fprintf(&b, "From: %s\n", formatAddress(msg.From))

	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, formatAddress(a))
	}
	fmt.Fprintf(&b, "To: %s\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	body := msg.Text
	if body == "" {
		body = strings.Join(msg.HTML, "\n")
	}
	b.WriteString(body + "\n")
	b.WriteString("========================================\n")

	return b.String()
}

func formatAddress(a mailtm.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}
