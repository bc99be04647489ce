package engine

import (
	"context"
	"strings"
	"time"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/domain"
)

type ReviewDecision string

const (
	ReviewContinue ReviewDecision = "continue"
	ReviewFreeze   ReviewDecision = "freeze"
	ReviewFinish   ReviewDecision = "finish"
)

// ReviewInput is the outcome of reviewing one active project. Continue
// needs a next action; freeze and finish need a snapshot.
type ReviewInput struct {
	Decision   string         `json:"decision" enum:"continue,freeze,finish,next_action"`
	NextAction *string        `json:"next_action,omitempty"`
	Snapshot   *SnapshotInput `json:"snapshot,omitempty"`
}

func parseReviewDecision(v string) (ReviewDecision, error) {
	switch d := ReviewDecision(strings.ToLower(strings.TrimSpace(v))); d {
	case ReviewContinue, ReviewFreeze, ReviewFinish:
		return d, nil
	case "next_action":
		return ReviewContinue, nil
	}
	return "", domain.Invalid("decision", "invalid review decision %q", v)
}

// Review records a review of an active project. The review timestamp is
// written separately from any lifecycle transition it triggers.
func (e Engine) Review(ctx context.Context, actorID, id string, in ReviewInput) (domain.Project, error) {
	decision, err := parseReviewDecision(in.Decision)
	if err != nil {
		return domain.Project{}, err
	}
	current, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if current.Status != domain.StatusActive {
		return domain.Project{}, domain.Invalid("status", "only active projects are reviewed")
	}
	reviewedAt := e.now().UTC().Format(time.RFC3339)

	switch decision {
	case ReviewContinue:
		if in.NextAction == nil {
			return domain.Project{}, domain.Invalid("next_action", "next action required")
		}
		next, err := ValidateNextAction(*in.NextAction, e.nextActionMax())
		if err != nil {
			return domain.Project{}, err
		}
		return e.Projects.UpdateProject(ctx, actorID, id, current.Status, domain.ProjectPatch{
			NextAction:     &next,
			LastReviewedAt: &reviewedAt,
		})
	case ReviewFreeze, ReviewFinish:
		action := domain.ActionFreeze
		if decision == ReviewFinish {
			action = domain.ActionFinish
		}
		moved, err := e.Apply(ctx, actorID, id, action, in.Snapshot)
		if err != nil {
			return domain.Project{}, err
		}
		return e.Projects.UpdateProject(ctx, actorID, id, moved.Status, domain.ProjectPatch{LastReviewedAt: &reviewedAt})
	}
	return domain.Project{}, domain.Invalid("decision", "invalid review decision %q", in.Decision)
}

// ReviewQueue lists active projects never reviewed or last reviewed more
// than the configured number of days ago.
func (e Engine) ReviewQueue(ctx context.Context) ([]domain.Project, error) {
	active, err := e.Projects.ListProjects(ctx, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	days := e.Lifecycle.ReviewStaleDays
	if days <= 0 {
		days = config.DefaultReviewStaleDays
	}
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	var due []domain.Project
	for _, p := range active {
		if isStale(p, cutoff) {
			due = append(due, p)
		}
	}
	return due, nil
}

func isStale(p domain.Project, cutoff time.Time) bool {
	if p.LastReviewedAt == nil {
		return true
	}
	reviewed, err := time.Parse(time.RFC3339, *p.LastReviewedAt)
	if err != nil {
		return true
	}
	return reviewed.Before(cutoff)
}
