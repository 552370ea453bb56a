// Package sink defines where newly fetched messages are reported.
package sink

import (
	"context"

	"github.com/shineum/tempmail-poller/internal/mailtm"
)

// Sink is the interface that reporting backends must implement.
// Each sink receives every new message exactly once per process, in the
// order the messages were listed (e.g., stdout, SES forwarding, Graph forwarding).
type Sink interface {
	// Report hands a fetched message to the backend.
	// A returned error leaves the message unseen so it is retried next cycle.
	Report(ctx context.Context, msg *mailtm.Message) error

	// Name returns the human-readable name of this sink.
	Name() string
}
