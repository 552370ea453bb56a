package mailtm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client to server with zero-delay retries.
func newTestClient(server *httptest.Server, token string) *Client {
	doer := newWithHTTPClient(server.URL, token, server.Client())
	exec := NewExecutor(doer, ExecutorConfig{Budget: 5 * time.Second, Backoff: FixedBackoff{}})
	return NewClient(exec, 0)
}

func TestClient_DomainsPlainArray(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/domains", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"1","domain":"example.com","isActive":true},{"id":"2","domain":"example.org","isActive":false}]`)
	}))
	defer server.Close()

	domains, err := newTestClient(server, "").Domains(context.Background())
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "example.com", domains[0].Domain)
	assert.True(t, domains[0].IsActive)
	assert.False(t, domains[1].IsActive)
}

func TestClient_DomainsHydraEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hydra:member":[{"id":"1","domain":"example.com","isActive":true}],"hydra:totalItems":1}`)
	}))
	defer server.Close()

	domains, err := newTestClient(server, "").Domains(context.Background())
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "example.com", domains[0].Domain)
}

func TestClient_CreateAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body.Address)
		assert.Equal(t, "hunter2", body.Password)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"acc-1","address":"user@example.com"}`)
	}))
	defer server.Close()

	acc, err := newTestClient(server, "").CreateAccount(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "user@example.com", acc.Address)
}

func TestClient_CreateAccountEmptyID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"","address":"user@example.com"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server, "").CreateAccount(context.Background(), "user@example.com", "pw")
	assert.Error(t, err)
}

func TestClient_CreateAccountConflict(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"address: This value is already used."}`)
	}))
	defer server.Close()

	_, err := newTestClient(server, "").CreateAccount(context.Background(), "user@example.com", "pw")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Token(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		fmt.Fprint(w, `{"id":"acc-1","token":"jwt-token"}`)
	}))
	defer server.Close()

	tok, err := newTestClient(server, "").Token(context.Background(), "user@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", tok.Token)
	assert.Equal(t, "acc-1", tok.ID)
}

func TestClient_ListMessagesSendsPageAndToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"hydra:member":[{"id":"m1","subject":"Hi","from":{"address":"a@b.c","name":"A"},"createdAt":"2026-01-01T10:00:00+00:00"}],
			"hydra:view":{"@id":"/messages?page=3","hydra:next":"/messages?page=4"}
		}`)
	}))
	defer server.Close()

	page, err := newTestClient(server, "secret-token").ListMessages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, page.Members, 1)
	assert.Equal(t, "m1", page.Members[0].ID)
	assert.Equal(t, "a@b.c", page.Members[0].From.Address)
	assert.True(t, page.HasNext)
}

func TestClient_ListMessagesTopLevelNext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hydra:member":[],"hydra:next":"/messages?page=2"}`)
	}))
	defer server.Close()

	page, err := newTestClient(server, "t").ListMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, page.Members)
	assert.True(t, page.HasNext)
}

func TestClient_ListMessagesLastPage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hydra:member":[{"id":"m1"}],"hydra:view":{"@id":"/messages?page=1"}}`)
	}))
	defer server.Close()

	page, err := newTestClient(server, "t").ListMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, page.HasNext)
}

func TestClient_GetMessage(t *testing.T) {
	t.Parallel()

	payload := `{"id":"A","subject":"Hi","from":{"address":"x@y.z","name":"X"},"to":[{"address":"me@example.com","name":""}],"text":"hello","html":["<p>hello</p>"]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/A", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	msg, err := newTestClient(server, "tok").GetMessage(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", msg.ID)
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, []string{"<p>hello</p>"}, msg.HTML)
	require.Len(t, msg.To, 1)
	assert.Equal(t, "me@example.com", msg.To[0].Address)
	assert.Equal(t, payload, string(msg.Raw))
}

func TestClient_GetMessageIRI(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/A", r.URL.Path)
		fmt.Fprint(w, `{"id":"A"}`)
	}))
	defer server.Close()

	msg, err := newTestClient(server, "tok").GetMessage(context.Background(), "/messages/A")
	require.NoError(t, err)
	assert.Equal(t, "A", msg.ID)
}

func TestClient_GetMessageNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server, "tok").GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestClient_RetriesThrottledListing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"hydra:member":[{"id":"m1"}]}`)
	}))
	defer server.Close()

	page, err := newTestClient(server, "tok").ListMessages(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, page.Members, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	doer := NewHTTPClient(HTTPClientConfig{BaseURL: url, Timeout: time.Second})
	_, err := doer.Do(context.Background(), Request{Method: http.MethodGet, Path: "/domains"})
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "/domains", te.Path)
}

func TestHTTPClient_ReturnsStatusAndBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	}))
	defer server.Close()

	doer := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL + "/"})
	resp, err := doer.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/x",
		Header: http.Header{"X-Extra": []string{"yes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", string(resp.Body))
}
