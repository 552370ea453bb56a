package mailtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBudget is the wall-clock limit for one Execute call.
const DefaultBudget = 600 * time.Second

// defaultRetryDelay is the fixed wait between attempts.
const defaultRetryDelay = 1 * time.Second

// ErrorKind classifies why Execute gave up.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindStatus
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the kind of an *Error.
var (
	ErrUnknown   = &Error{Kind: KindUnknown}
	ErrTransport = &Error{Kind: KindTransport}
	ErrStatus    = &Error{Kind: KindStatus}
	ErrTimeout   = &Error{Kind: KindTimeout}
)

// ErrInvalidJSON is returned when a 200/201 response body is not JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// Error is the single error type raised by Execute.
type Error struct {
	Kind ErrorKind

	// StatusCode is set for KindStatus.
	StatusCode int

	// Err is the last transport failure for KindTransport.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("mail.tm request failed: %v", e.Err)
	case KindStatus:
		return fmt.Sprintf("mail.tm request failed: status code %d", e.StatusCode)
	case KindTimeout:
		return "mail.tm request failed: timeout"
	default:
		return "mail.tm request failed: unknown error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the
// package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Backoff decides how long to wait between attempts.
type Backoff interface {
	Wait(ctx context.Context) error
}

// FixedBackoff waits the same Delay before every retry.
type FixedBackoff struct {
	Delay time.Duration
}

// Wait blocks for b.Delay or until ctx is cancelled.
func (b FixedBackoff) Wait(ctx context.Context) error {
	return sleepWithContext(ctx, b.Delay)
}

// ExecutorConfig holds the configuration for creating an Executor.
type ExecutorConfig struct {
	// Budget is used when Execute is called with a non-positive budget.
	// Defaults to DefaultBudget.
	Budget time.Duration

	// Backoff defaults to a fixed one second wait.
	Backoff Backoff
}

// Executor runs Requests with bounded-time retries. Transport failures and
// HTTP 429 are retried after a backoff wait; any other non-success status
// ends the call immediately.
type Executor struct {
	doer    Doer
	budget  time.Duration
	backoff Backoff
	now     func() time.Time
}

// NewExecutor creates an Executor sending attempts through doer.
func NewExecutor(doer Doer, cfg ExecutorConfig) *Executor {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Delay: defaultRetryDelay}
	}
	return &Executor{
		doer:    doer,
		budget:  cfg.Budget,
		backoff: cfg.Backoff,
		now:     time.Now,
	}
}

// Execute issues req until it succeeds, fails terminally, or budget runs
// out. On HTTP 200 or 201 the response body is returned as JSON.
func (e *Executor) Execute(ctx context.Context, req Request, budget time.Duration) (json.RawMessage, error) {
	if budget <= 0 {
		budget = e.budget
	}
	deadline := e.now().Add(budget)

	var transportErr error
	terminalStatus := 0

	for attempt := 1; e.now().Before(deadline); attempt++ {
		resp, err := e.doer.Do(ctx, req)
		if err != nil {
			var te *TransportError
			if !errors.As(err, &te) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("context cancelled during %s %s: %w", req.Method, req.Path, ctx.Err())
			}
			transportErr = err
			slog.Debug("mail.tm transport error, retrying",
				"path", req.Path,
				"attempt", attempt,
				"error", err,
			)
		} else {
			transportErr = nil
			switch resp.StatusCode {
			case http.StatusOK, http.StatusCreated:
				if !json.Valid(resp.Body) {
					return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrInvalidJSON)
				}
				return json.RawMessage(resp.Body), nil
			case http.StatusTooManyRequests:
				slog.Debug("rate limited by mail.tm, retrying",
					"path", req.Path,
					"attempt", attempt,
				)
			default:
				terminalStatus = resp.StatusCode
			}
		}

		if terminalStatus != 0 {
			break
		}
		if err := e.backoff.Wait(ctx); err != nil {
			return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
		}
	}

	switch {
	case transportErr != nil:
		return nil, &Error{Kind: KindTransport, Err: transportErr}
	case terminalStatus != 0:
		return nil, &Error{Kind: KindStatus, StatusCode: terminalStatus}
	case !e.now().Before(deadline):
		return nil, &Error{Kind: KindTimeout}
	default:
		return nil, &Error{Kind: KindUnknown}
	}
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
