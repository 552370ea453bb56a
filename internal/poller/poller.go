// Package poller runs the mailbox polling loop: list headers, fetch the
// messages not yet seen, report them, sleep, repeat.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/tempmail-poller/internal/dedup"
	"github.com/shineum/tempmail-poller/internal/mailtm"
	"github.com/shineum/tempmail-poller/internal/sink"
)

// DefaultInterval is the wait between two poll cycles.
const DefaultInterval = 60 * time.Second

// Mailbox is the part of the provider API the loop needs.
// *mailtm.Client implements it.
type Mailbox interface {
	ListMessages(ctx context.Context, page int) (*mailtm.MessagePage, error)
	GetMessage(ctx context.Context, id string) (*mailtm.Message, error)
}

// Config holds the loop settings.
type Config struct {
	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// ContinueOnError logs a failed cycle and keeps polling instead of
	// returning the error from Run.
	ContinueOnError bool
}

// Poller owns the SeenSet for one mailbox. It is driven by a single
// goroutine; Run and Cycle must not be called concurrently.
type Poller struct {
	mailbox Mailbox
	sink    sink.Sink
	seen    *dedup.SeenSet
	cfg     Config
	wait    func(ctx context.Context, d time.Duration) error
}

// New creates a Poller with an empty SeenSet.
func New(mailbox Mailbox, s sink.Sink, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		mailbox: mailbox,
		sink:    s,
		seen:    dedup.NewSeenSet(),
		cfg:     cfg,
		wait:    sleepWithContext,
	}
}

// Seen reports whether id has already been reported by this Poller.
func (p *Poller) Seen(id string) bool {
	return p.seen.Contains(id)
}

// Run polls until ctx is cancelled. It returns nil on cancellation and the
// cycle error otherwise, unless ContinueOnError is set.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("starting poller",
		"sink", p.sink.Name(),
		"interval", p.cfg.Interval,
		"continue_on_error", p.cfg.ContinueOnError,
	)

	for {
		reported, err := p.Cycle(ctx)
		switch {
		case ctx.Err() != nil:
			slog.Info("poller stopped", "seen_count", p.seen.Len())
			return nil
		case err != nil && !p.cfg.ContinueOnError:
			return err
		case err != nil:
			slog.Error("poll cycle failed", "error", err)
		case reported > 0:
			slog.Info(fmt.Sprintf("reported %d new message(s)", reported), "seen_count", p.seen.Len())
		default:
			slog.Debug("no new messages")
		}

		if err := p.wait(ctx, p.cfg.Interval); err != nil {
			slog.Info("poller stopped", "seen_count", p.seen.Len())
			return nil
		}
	}
}

// Cycle performs one pass: it collects every header page, then fetches and
// reports the unseen messages in listing order. It returns how many messages
// were reported before any error.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	headers, err := p.collectHeaders(ctx)
	if err != nil {
		return 0, err
	}

	reported := 0
	for _, h := range headers {
		if p.seen.Contains(h.ID) {
			continue
		}

		msg, err := p.mailbox.GetMessage(ctx, h.ID)
		if err != nil {
			return reported, err
		}
		if err := p.sink.Report(ctx, msg); err != nil {
			return reported, fmt.Errorf("failed to report message %s via %s: %w", h.ID, p.sink.Name(), err)
		}
		p.seen.Add(h.ID)
		reported++

		slog.Debug("reported message", "message_id", h.ID, "subject", h.Subject)
	}
	return reported, nil
}

// collectHeaders walks the listing from page 1 while the provider signals a
// further page.
func (p *Poller) collectHeaders(ctx context.Context) ([]mailtm.MessageHeader, error) {
	var headers []mailtm.MessageHeader
	for page := 1; ; page++ {
		result, err := p.mailbox.ListMessages(ctx, page)
		if err != nil {
			return nil, err
		}
		headers = append(headers, result.Members...)
		if !result.HasNext {
			return headers, nil
		}
		if len(result.Members) == 0 {
			return nil, errors.New("message listing signalled a next page after an empty page")
		}
	}
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
