package mailtm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Address is a mailbox address as returned by the API.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Domain is a receiving domain offered by the provider.
type Domain struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
}

// Account is a created mailbox.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Token is the bearer token issued for an account.
type Token struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// MessageHeader is one entry of the message listing. ID is its identity.
type MessageHeader struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	From      Address   `json:"from"`
	To        []Address `json:"to"`
	Subject   string    `json:"subject"`
	Intro     string    `json:"intro"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessagePage is one page of the message listing.
type MessagePage struct {
	Members []MessageHeader
	HasNext bool
}

// Message is a fully fetched email. Raw is the payload exactly as returned
// by the API; the other fields are decoded from it for convenience.
type Message struct {
	ID      string
	From    Address
	To      []Address
	Subject string
	Text    string
	HTML    []string
	Raw     json.RawMessage
}

// messageFields is the subset of the message payload we decode.
type messageFields struct {
	ID      string    `json:"id"`
	From    Address   `json:"from"`
	To      []Address `json:"to"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	HTML    []string  `json:"html"`
}

// hydraCollection is the JSON-LD collection envelope used for listings.
type hydraCollection struct {
	Member []json.RawMessage `json:"hydra:member"`
	Next   string            `json:"hydra:next"`
	View   struct {
		Next string `json:"hydra:next"`
	} `json:"hydra:view"`
}

// decodeCollection accepts either a plain JSON array or a hydra envelope and
// returns the members plus whether a further page exists.
func decodeCollection(data json.RawMessage) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var members []json.RawMessage
		if err := json.Unmarshal(trimmed, &members); err != nil {
			return nil, false, fmt.Errorf("failed to parse collection: %w", err)
		}
		return members, false, nil
	}

	var coll hydraCollection
	if err := json.Unmarshal(trimmed, &coll); err != nil {
		return nil, false, fmt.Errorf("failed to parse collection: %w", err)
	}
	return coll.Member, coll.Next != "" || coll.View.Next != "", nil
}

// decodeMembers unmarshals every raw member into a T.
func decodeMembers[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("failed to parse member %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
