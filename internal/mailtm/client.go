package mailtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client exposes the provider endpoints. Every call is run by the Executor.
type Client struct {
	exec   *Executor
	budget time.Duration
}

// NewClient creates a Client. A non-positive budget uses the Executor default.
func NewClient(exec *Executor, budget time.Duration) *Client {
	return &Client{exec: exec, budget: budget}
}

// Domains returns the domains accounts can be created on.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	data, err := c.exec.Execute(ctx, Request{Method: http.MethodGet, Path: "/domains"}, c.budget)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	raw, _, err := decodeCollection(data)
	if err != nil {
		return nil, err
	}
	return decodeMembers[Domain](raw)
}

// credentials is the body of POST /accounts and POST /token.
type credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

// CreateAccount registers a new mailbox.
func (c *Client) CreateAccount(ctx context.Context, address, password string) (*Account, error) {
	body, err := json.Marshal(credentials{Address: address, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account request: %w", err)
	}

	data, err := c.exec.Execute(ctx, Request{Method: http.MethodPost, Path: "/accounts", Body: body}, c.budget)
	if err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", address, err)
	}

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}
	if acc.ID == "" {
		return nil, errors.New("account response missing id")
	}
	return &acc, nil
}

// Token exchanges account credentials for a bearer token.
func (c *Client) Token(ctx context.Context, address, password string) (*Token, error) {
	body, err := json.Marshal(credentials{Address: address, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	data, err := c.exec.Execute(ctx, Request{Method: http.MethodPost, Path: "/token", Body: body}, c.budget)
	if err != nil {
		return nil, fmt.Errorf("failed to get token for %s: %w", address, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.Token == "" {
		return nil, errors.New("token response missing token")
	}
	return &tok, nil
}

// ListMessages returns one page of message headers. Pages start at 1.
func (c *Client) ListMessages(ctx context.Context, page int) (*MessagePage, error) {
	req := Request{
		Method: http.MethodGet,
		Path:   "/messages?page=" + strconv.Itoa(page),
	}
	data, err := c.exec.Execute(ctx, req, c.budget)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages page %d: %w", page, err)
	}

	raw, hasNext, err := decodeCollection(data)
	if err != nil {
		return nil, err
	}
	headers, err := decodeMembers[MessageHeader](raw)
	if err != nil {
		return nil, err
	}
	return &MessagePage{Members: headers, HasNext: hasNext}, nil
}

// GetMessage fetches the full message with the given id.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	req := Request{
		Method: http.MethodGet,
		Path:   "/" + strings.TrimPrefix(id, "/"),
	}
	data, err := c.exec.Execute(ctx, req, c.budget)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}

	var fields messageFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}
	if fields.ID == "" {
		fields.ID = id
	}

	return &Message{
		ID:      fields.ID,
		From:    fields.From,
		To:      fields.To,
		Subject: fields.Subject,
		Text:    fields.Text,
		HTML:    fields.HTML,
		Raw:     data,
	}, nil
}
