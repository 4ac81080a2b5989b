package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

func event(kind string) models.RunEvent {
	return models.RunEvent{
		Type:      kind,
		Run:       models.Run{ID: "run-1", Status: models.RunStatusCompleted, Accepted: 4},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func fastOptions(url string) Options {
	return Options{URL: url, MaxAttempts: 3, InitialBackoff: time.Millisecond, Timeout: time.Second}
}

func TestNewWebhookWithoutURL(t *testing.T) {
	assert.Nil(t, NewWebhook(Options{}))
}

func TestNotifySignsPayload(t *testing.T) {
	var got models.RunEvent
	var sig, kind string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sig = r.Header.Get("X-GeniQ-Signature")
		kind = r.Header.Get("X-GeniQ-Event")
		assert.Equal(t, "sha256="+Sign("s3cret", body), sig)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	opts := fastOptions(srv.URL)
	opts.Secret = "s3cret"
	require.NoError(t, NewWebhook(opts).Notify(context.Background(), event(models.EventRunCompleted)))

	assert.Equal(t, models.EventRunCompleted, kind)
	assert.Equal(t, "run-1", got.Run.ID)
	assert.Equal(t, 4, got.Run.Accepted)
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(fastOptions(srv.URL)).Notify(context.Background(), event(models.EventRunFailed)))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNotifyClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWebhook(fastOptions(srv.URL)).Notify(context.Background(), event(models.EventRunFailed))
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNotifyEventFilter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	opts := fastOptions(srv.URL)
	opts.Events = []string{models.EventRunFailed}
	w := NewWebhook(opts)

	require.NoError(t, w.Notify(context.Background(), event(models.EventRunCompleted)))
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	require.NoError(t, w.Notify(context.Background(), event(models.EventRunFailed)))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
