// Package graph implements a Sink that forwards messages via the Microsoft Graph API.
package graph

import (
	"github.com/shineum/tempmail-poller/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject                string           `json:"subject"`
	Body                   messageBody      `json:"body"`
	ToRecipients           []recipient      `json:"toRecipients"`
	ReplyTo                []recipient      `json:"replyTo,omitempty"`
	InternetMessageHeaders []internetHeader `json:"internetMessageHeaders,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

// internetHeader is a custom X- header; Graph only accepts names starting with "X-".
type internetHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts a forwarded email into a sendMail request body.
func buildSendMailRequest(e *email.Email) *sendMailRequest {
	body := messageBody{
		ContentType: "text",
		Content:     e.TextBody,
	}
	if e.HtmlBody != "" {
		body.ContentType = "html"
		body.Content = e.HtmlBody
	}

	to := make([]recipient, 0, len(e.To))
	for _, addr := range e.To {
		to = append(to, recipient{EmailAddress: emailAddress{Address: addr}})
	}

	var replyTo []recipient
	if e.ReplyTo != "" {
		replyTo = []recipient{{EmailAddress: emailAddress{Address: e.ReplyTo}}}
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:      e.Subject,
			Body:         body,
			ToRecipients: to,
			ReplyTo:      replyTo,
			InternetMessageHeaders: []internetHeader{
				{Name: email.SourceHeader, Value: e.SourceID},
			},
		},
	}
}
