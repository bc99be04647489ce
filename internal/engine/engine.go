package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/logging"
	"github.com/and27/pcengine/internal/metrics"
	"github.com/and27/pcengine/internal/repo"
)

// Engine applies lifecycle rules on top of the store. It holds no state of
// its own; every guarantee about concurrent callers comes from the store's
// conditional writes.
type Engine struct {
	Projects    ProjectStore
	Drafts      DraftStore
	Connections ConnectionStore
	Events      EventStore
	Repos       RepoLister
	Lifecycle   config.Lifecycle
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func New(r repo.Repo, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Projects:    r,
		Drafts:      r,
		Connections: r,
		Events:      r,
		Lifecycle:   cfg.Lifecycle,
		Logger:      logging.OrNop(logger),
		Metrics:     metrics.New(),
		Now:         time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Logger)
}

func (e Engine) activeCap() int {
	if e.Lifecycle.ActiveCap > 0 {
		return e.Lifecycle.ActiveCap
	}
	return config.DefaultActiveCap
}

func (e Engine) nextActionMax() int {
	if e.Lifecycle.NextActionMax > 0 {
		return e.Lifecycle.NextActionMax
	}
	return MaxNextActionLength
}

// ActiveCap exposes the configured limit to callers that render it.
func (e Engine) ActiveCap() int {
	return e.activeCap()
}

// ListEvents returns audit events after the cursor, oldest first.
func (e Engine) ListEvents(ctx context.Context, projectID string, after int64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.Events.EventsAfter(ctx, limit, after, projectID)
}

// outcome classifies an error for the transitions metric.
func outcome(err error) string {
	var ve *domain.ValidationError
	var te *domain.InvalidTransitionError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrActiveCapReached):
		return "active_cap_reached"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &te):
		return "invalid_transition"
	case errors.As(err, &ve):
		return "invalid"
	default:
		return "error"
	}
}

func (e Engine) record(action domain.Action, projectID string, err error) {
	result := outcome(err)
	e.Metrics.Transition(action.String(), result)
	if result == "active_cap_reached" && e.Metrics != nil {
		e.Metrics.ActiveCapRejections.Inc()
	}
	fields := []zap.Field{zap.String("action", action.String()), zap.String("project_id", projectID), zap.String("outcome", result)}
	switch result {
	case "ok":
		e.log().Info("lifecycle transition", fields...)
	case "error":
		e.log().Error("lifecycle transition failed", append(fields, zap.Error(err))...)
	default:
		e.log().Debug("lifecycle transition refused", append(fields, zap.Error(err))...)
	}
}
