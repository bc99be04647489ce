package server

import (
	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	Name             string  `json:"name"`
	NextAction       string  `json:"next_action"`
	Status           string  `json:"status,omitempty" enum:"active,frozen,archived"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
}

func (r CreateProjectRequest) input() engine.CreateProjectInput {
	return engine.CreateProjectInput{
		Name:             r.Name,
		NarrativeLink:    r.NarrativeLink,
		WhyNow:           r.WhyNow,
		FinishDefinition: r.FinishDefinition,
		Status:           r.Status,
		NextAction:       r.NextAction,
	}
}

// UpdateProjectRequest edits descriptive fields. An empty string clears an
// optional field.
type UpdateProjectRequest struct {
	Name             *string `json:"name,omitempty"`
	NextAction       *string `json:"next_action,omitempty"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
}

func (r UpdateProjectRequest) input() engine.UpdateProjectInput {
	return engine.UpdateProjectInput{
		Name:             r.Name,
		NarrativeLink:    r.NarrativeLink,
		WhyNow:           r.WhyNow,
		FinishDefinition: r.FinishDefinition,
		NextAction:       r.NextAction,
	}
}

type RestartRequest struct {
	NextAction string `json:"next_action"`
}

type ImportDraftsRequest struct {
	Drafts []domain.DraftImport `json:"drafts"`
}

// Response payloads

type ImportDraftsResponse struct {
	Imported int `json:"imported"`
}

type ConvertDraftResponse struct {
	ProjectID string `json:"project_id"`
}

type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url" format:"uri"`
}

type EventsResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}

type ConfigResponse struct {
	ActiveCap       int    `json:"active_cap"`
	NextActionMax   int    `json:"next_action_max"`
	ReviewStaleDays int    `json:"review_stale_days"`
	DefaultStatus   string `json:"default_status"`
	GitHubEnabled   bool   `json:"github_enabled"`
}

func configResponse(e engine.Engine, githubEnabled bool) ConfigResponse {
	l := e.Lifecycle
	resp := ConfigResponse{
		ActiveCap:       e.ActiveCap(),
		NextActionMax:   l.NextActionMax,
		ReviewStaleDays: l.ReviewStaleDays,
		DefaultStatus:   l.DefaultStatus,
		GitHubEnabled:   githubEnabled,
	}
	if resp.NextActionMax <= 0 {
		resp.NextActionMax = engine.MaxNextActionLength
	}
	if resp.ReviewStaleDays <= 0 {
		resp.ReviewStaleDays = config.DefaultReviewStaleDays
	}
	if resp.DefaultStatus == "" {
		resp.DefaultStatus = string(domain.StatusActive)
	}
	return resp
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
