package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/tempmail-poller/internal/email"
	"github.com/shineum/tempmail-poller/internal/mailtm"
)

// GraphSinkConfig holds the configuration for creating a GraphSink.
type GraphSinkConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	ForwardTo    []string
}

// GraphSink forwards reported messages through the sender mailbox using the
// Microsoft Graph sendMail endpoint with OAuth2 client credentials.
type GraphSink struct {
	sender     string
	forwardTo  []string
	sendURL    string
	httpClient *http.Client
	token      *tokenCache
}

// New creates a new GraphSink with the given configuration.
func New(cfg GraphSinkConfig) (*GraphSink, error) {
	if len(cfg.ForwardTo) == 0 {
		return nil, errors.New("graph sink requires at least one forward_to address")
	}

	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	sendURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, sendURL, tokenURL, &http.Client{Timeout: 30 * time.Second}), nil
}

// newWithOverrides creates a GraphSink with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg GraphSinkConfig, sendURL, tokenURL string, client *http.Client) *GraphSink {
	return &GraphSink{
		sender:     cfg.Sender,
		forwardTo:  cfg.ForwardTo,
		sendURL:    sendURL,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
	}
}

// Report forwards msg via sendMail. A 401 triggers one token refresh and a
// second attempt; every other failure is returned to the caller, which
// leaves the message unseen for the next poll cycle.
func (g *GraphSink) Report(ctx context.Context, msg *mailtm.Message) error {
	fwd := email.Forward(msg, g.sender, g.forwardTo)

	body, err := json.Marshal(buildSendMailRequest(fwd))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	err = g.send(ctx, body)
	var se *sendError
	if errors.As(err, &se) && se.statusCode == http.StatusUnauthorized {
		slog.Info("refreshing Graph API token after 401")
		if _, refreshErr := g.token.ForceRefresh(ctx); refreshErr != nil {
			return fmt.Errorf("token refresh failed: %w", refreshErr)
		}
		err = g.send(ctx, body)
	}
	if err != nil {
		return err
	}

	slog.Info("forwarded message via Graph",
		"message_id", msg.ID,
		"summary", fwd.Summary(),
	)
	return nil
}

// Name returns the sink name.
func (g *GraphSink) Name() string {
	return "msgraph"
}

// send performs a single sendMail request.
func (g *GraphSink) send(ctx context.Context, body []byte) error {
	token, err := g.token.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	data, _ := io.ReadAll(resp.Body)
	message := string(data)
	var errResp graphErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return &sendError{statusCode: resp.StatusCode, message: message}
}

// sendError is a non-success answer from sendMail.
type sendError struct {
	statusCode int
	message    string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
