package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostAddsSentAt(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewWebhookClient(nopLogger())
	body, err := c.Post(context.Background(), srv.URL, map[string]interface{}{
		"owner_id": "owner-1",
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok": true}`, string(body))
	assert.Equal(t, "owner-1", received["owner_id"])
	assert.NotEmpty(t, received["sent_at"])
}

func TestWebhookPostNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "workflow not active", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewWebhookClient(nopLogger())
	body, err := c.Post(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "workflow not active")
	// the body is still returned for debugging
	assert.Contains(t, string(body), "workflow not active")
}

func TestWebhookPostEmptyURL(t *testing.T) {
	c := NewWebhookClient(nopLogger())

	_, err := c.Post(context.Background(), "", map[string]interface{}{"owner_id": "owner-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestWebhookPostHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewWebhookClient(nopLogger())
	_, err := c.Post(ctx, srv.URL, nil)
	assert.Error(t, err)
}
