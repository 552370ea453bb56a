// Package ses implements a Sink that forwards messages via AWS SES v2.
package ses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/tempmail-poller/internal/email"
	"github.com/shineum/tempmail-poller/internal/mailtm"
)

// SESSinkConfig holds the configuration for creating a SESSink.
type SESSinkConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	ForwardTo       []string
}

// SESSink forwards every reported message to fixed recipients via AWS SES v2.
type SESSink struct {
	sender    string
	forwardTo []string
	client    SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESSink with the given configuration.
// Retries of the SES call itself are left to the AWS SDK.
func New(ctx context.Context, cfg SESSinkConfig) (*SESSink, error) {
	if len(cfg.ForwardTo) == 0 {
		return nil, errors.New("ses sink requires at least one forward_to address")
	}

	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, cfg.ForwardTo, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SESSink with a custom client, used for testing.
func NewWithClient(sender string, forwardTo []string, client SendEmailAPI) *SESSink {
	return &SESSink{
		sender:    sender,
		forwardTo: forwardTo,
		client:    client,
	}
}

// Report forwards msg as a raw MIME email.
func (s *SESSink) Report(ctx context.Context, msg *mailtm.Message) error {
	fwd := email.Forward(msg, s.sender, s.forwardTo)

	raw, err := buildRawMessage(fwd, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build raw message: %w", err)
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fwd.From),
		Destination: &types.Destination{
			ToAddresses: fwd.To,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail failed: %w", err)
	}

	slog.Info("forwarded message via SES",
		"message_id", msg.ID,
		"ses_message_id", aws.ToString(out.MessageId),
		"summary", fwd.Summary(),
	)
	return nil
}

// Name returns the sink name.
func (s *SESSink) Name() string {
	return "ses"
}

// buildRawMessage renders e as an RFC 5322 message with a
// multipart/alternative body holding whichever of text and HTML are present.
func buildRawMessage(e *email.Email, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: e.From}})

	to := make([]*mail.Address, 0, len(e.To))
	for _, addr := range e.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	if e.ReplyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: e.ReplyTo}})
	}
	h.SetSubject(e.Subject)
	h.Set(email.SourceHeader, e.SourceID)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate Message-ID: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	text := e.TextBody
	if text == "" && e.HtmlBody == "" {
		text = " "
	}
	if text != "" {
		if err := writePart(iw, "text/plain", text); err != nil {
			return nil, err
		}
	}
	if e.HtmlBody != "" {
		if err := writePart(iw, "text/html", e.HtmlBody); err != nil {
			return nil, err
		}
	}

	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}
