package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
	"github.com/and27/pcengine/internal/logging"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
	webhookMaxRetries      = 3
)

// WebhookDispatcher polls the audit log and POSTs new events to every
// enabled hook. Each hook keeps its own cursor; a failed delivery stops
// that hook's batch so the event is retried on the next tick.
type WebhookDispatcher struct {
	Engine   engine.Engine
	Webhooks []config.WebhookConfig
	Interval time.Duration
	Logger   *zap.Logger
	// RetryInterval is the first backoff delay between delivery attempts.
	RetryInterval time.Duration

	client  *http.Client
	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(e engine.Engine, hooks []config.WebhookConfig, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		Engine:        e,
		Webhooks:      hooks,
		Interval:      defaultWebhookInterval,
		Logger:        logging.OrNop(logger),
		RetryInterval: 500 * time.Millisecond,
		client:        &http.Client{Timeout: defaultWebhookTimeout},
		cursors:       make(map[int]int64),
	}
}

// Run dispatches until ctx is done. It returns immediately when no hook is enabled.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	if !d.anyEnabled() {
		return nil
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *WebhookDispatcher) anyEnabled() bool {
	for _, hook := range d.Webhooks {
		if enabled(hook) {
			return true
		}
	}
	return false
}

func enabled(hook config.WebhookConfig) bool {
	if hook.Enabled != nil && !*hook.Enabled {
		return false
	}
	return strings.TrimSpace(hook.URL) != ""
}

// DispatchAll runs one polling pass over every hook.
func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.Webhooks {
		if !enabled(hook) {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	log := d.Logger.With(zap.String("url", hook.URL))
	cursor := d.cursorFor(ctx, idx)
	events, err := d.Engine.ListEvents(ctx, "", cursor, defaultWebhookBatch)
	if err != nil {
		log.Error("webhook: fetch events failed", zap.Error(err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.deliver(ctx, hook, evt); err != nil {
			d.observe("failed")
			log.Warn("webhook: delivery failed", zap.Int64("event_id", evt.ID), zap.Error(err))
			return
		}
		d.observe("delivered")
		d.setCursor(idx, evt.ID)
	}
}

func (d *WebhookDispatcher) observe(outcome string) {
	if d.Engine.Metrics != nil {
		d.Engine.Metrics.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	}
}

// cursorFor starts new hooks at the latest event so history is not replayed.
func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.Engine.Events.LatestEventID(ctx, "")
	if err != nil {
		d.Logger.Error("webhook: init cursor failed", zap.Error(err))
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) deliver(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, webhookMaxRetries), ctx)
	return backoff.Retry(func() error {
		return d.postEvent(ctx, client, hook, evt, data)
	}, policy)
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, client *http.Client, hook config.WebhookConfig, evt domain.Event, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pcengine-Event", evt.Type)
	req.Header.Set("X-Pcengine-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Pcengine-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
