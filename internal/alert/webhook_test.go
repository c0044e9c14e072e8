// File: internal/alert/webhook_test.go
package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight-io/signal-engine/internal/config"
)

func TestWebhookAlerterPostsPayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewWebhookAlerter(srv.URL, 5*time.Second)
	err := a.Send(context.Background(), &Event{
		Kind:      KindStaleSignals,
		Severity:  SeverityWarning,
		Message:   "Unprocessed signals are past the staleness horizon",
		Details:   map[string]interface{}{"count": 7},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, "signal-engine", received.Source)
	assert.Equal(t, KindStaleSignals, received.Kind)
	assert.Equal(t, SeverityWarning, received.Severity)
	assert.EqualValues(t, 7, received.Details["count"])
}

func TestWebhookAlerterRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewWebhookAlerter(srv.URL, 5*time.Second)
	err := a.Send(context.Background(), &Event{Kind: KindProviderFailure, Severity: SeverityError, Message: "x"})
	assert.Error(t, err)
}

func TestDispatcherSwallowsChannelFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(&config.AlertConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Timeout:    5 * time.Second,
	})

	// Must not panic or propagate the webhook failure
	d.Notify(context.Background(), &Event{Kind: KindStaleSignals, Severity: SeverityWarning, Message: "m"})
}

func TestDispatcherDisabled(t *testing.T) {
	d := NewDispatcher(&config.AlertConfig{Enabled: false})
	assert.Empty(t, d.alerters)
	d.Notify(context.Background(), &Event{Kind: KindStaleSignals, Message: "m"})
}
