package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/engine"
)

type receivedHook struct {
	Event    string
	Delivery string
	Secret   string
	Body     webhookEvent
}

func newHookReceiver(t *testing.T, status int) (*httptest.Server, func() []receivedHook) {
	t.Helper()
	var mu sync.Mutex
	var got []receivedHook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(data, &evt)
		mu.Lock()
		got = append(got, receivedHook{
			Event:    r.Header.Get("X-Pcengine-Event"),
			Delivery: r.Header.Get("X-Pcengine-Delivery"),
			Secret:   r.Header.Get("X-Pcengine-Secret"),
			Body:     evt,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []receivedHook {
		mu.Lock()
		defer mu.Unlock()
		return append([]receivedHook(nil), got...)
	}
}

func createFrozen(t *testing.T, e engine.Engine, name string) string {
	t.Helper()
	p, err := e.CreateProject(context.Background(), "u1", engine.CreateProjectInput{Name: name, NextAction: "go", Status: "frozen"})
	require.NoError(t, err)
	return p.ID
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	e := newTestEngine(t)
	createFrozen(t, e, "before")
	srv, received := newHookReceiver(t, http.StatusOK)

	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: srv.URL, Secret: "s3cr3t"}}, zap.NewNop())
	ctx := context.Background()
	d.DispatchAll(ctx)
	assert.Empty(t, received(), "history is not replayed")

	id := createFrozen(t, e, "after")
	d.DispatchAll(ctx)
	got := received()
	require.Len(t, got, 1)
	assert.Equal(t, "project.created", got[0].Event)
	assert.Equal(t, "s3cr3t", got[0].Secret)
	assert.NotEmpty(t, got[0].Delivery)
	assert.Equal(t, id, got[0].Body.ProjectID)
	assert.Equal(t, "u1", got[0].Body.ActorID)

	d.DispatchAll(ctx)
	assert.Len(t, received(), 1)
}

func TestWebhookDispatcherFiltersEvents(t *testing.T) {
	e := newTestEngine(t)
	srv, received := newHookReceiver(t, http.StatusOK)
	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: srv.URL, Events: []string{"project.archived"}}}, nil)
	ctx := context.Background()
	d.DispatchAll(ctx)

	id := createFrozen(t, e, "a")
	_, err := e.Archive(ctx, "u1", id)
	require.NoError(t, err)
	d.DispatchAll(ctx)

	got := received()
	require.Len(t, got, 1)
	assert.Equal(t, "project.archived", got[0].Event)
	assert.Empty(t, got[0].Secret)
}

func TestWebhookDispatcherStopsOnPermanentFailure(t *testing.T) {
	e := newTestEngine(t)
	srv, received := newHookReceiver(t, http.StatusBadRequest)
	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: srv.URL}}, nil)
	d.RetryInterval = time.Millisecond
	ctx := context.Background()
	d.DispatchAll(ctx)

	createFrozen(t, e, "a")
	createFrozen(t, e, "b")
	d.DispatchAll(ctx)
	require.Len(t, received(), 1, "4xx is not retried and halts the batch")

	d.DispatchAll(ctx)
	got := received()
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Delivery, got[1].Delivery)
}

func TestWebhookDispatcherRetriesServerErrors(t *testing.T) {
	e := newTestEngine(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: srv.URL}}, nil)
	d.RetryInterval = time.Millisecond
	ctx := context.Background()
	d.DispatchAll(ctx)
	createFrozen(t, e, "a")
	d.DispatchAll(ctx)
	assert.EqualValues(t, 2, calls.Load())
}

func TestWebhookDispatcherRunWithoutHooks(t *testing.T) {
	disabled := false
	d := NewWebhookDispatcher(newTestEngine(t), []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &disabled}}, nil)
	require.NoError(t, d.Run(context.Background()))
}

func TestWebhookDispatcherRunStopsOnCancel(t *testing.T) {
	srv, _ := newHookReceiver(t, http.StatusOK)
	d := NewWebhookDispatcher(newTestEngine(t), []config.WebhookConfig{{URL: srv.URL}}, nil)
	d.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
