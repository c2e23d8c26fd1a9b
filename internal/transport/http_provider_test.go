package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderSend(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-123"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret-key", srv.Client())
	res, err := p.Send(context.Background(), Message{
		From:     "news@example.com",
		FromName: "Example News",
		To:       []string{"a@x.com", "b@x.com"},
		Subject:  "Hello",
		HTML:     "<p>hi</p>",
		Tags:     map[string]string{"broadcast_id": "b1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-123", res.ProviderID)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "Example News <news@example.com>", gotBody["from"])
	assert.Equal(t, "Hello", gotBody["subject"])
	assert.Len(t, gotBody["to"], 2)
}

func TestHTTPProviderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid recipient list"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "k", srv.Client())
	_, err := p.Send(context.Background(), Message{From: "a@x.com", To: []string{"b@x.com"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid recipient list")
}

func TestHTTPProviderMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "k", srv.Client())
	_, err := p.Send(context.Background(), Message{From: "a@x.com", To: []string{"b@x.com"}})
	assert.Error(t, err)
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"id": "late"})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "k", srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Send(ctx, Message{From: "a@x.com", To: []string{"b@x.com"}})
	assert.Error(t, err, "a timed-out transport call must surface as an error")
}
