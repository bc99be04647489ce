package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/domain"
)

// ErrGitHubNotConfigured is returned when no repository lister is wired.
var ErrGitHubNotConfigured = errors.New("github integration not configured")

// ConvertDraftInput names the project a draft becomes.
type ConvertDraftInput struct {
	Name             string  `json:"name"`
	NextAction       string  `json:"next_action"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
}

func requireUser(user domain.UserContext) error {
	if !user.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return nil
}

// ImportDrafts upserts drafts for the user and returns how many were
// written. Re-imports refresh metadata but never touch conversion state.
func (e Engine) ImportDrafts(ctx context.Context, user domain.UserContext, drafts []domain.DraftImport) (int, error) {
	if err := requireUser(user); err != nil {
		return 0, err
	}
	if len(drafts) == 0 {
		return 0, nil
	}
	clean := make([]domain.DraftImport, 0, len(drafts))
	for i, d := range drafts {
		n, err := normalizeDraft(d)
		if err != nil {
			return 0, fmt.Errorf("draft %d: %w", i, err)
		}
		clean = append(clean, n)
	}
	n, err := e.Drafts.UpsertDrafts(ctx, user.UserID, clean)
	if err != nil {
		return 0, err
	}
	if e.Metrics != nil {
		e.Metrics.DraftsImportedTotal.Add(float64(n))
	}
	e.log().Info("drafts imported", zap.String("user_id", user.UserID), zap.Int("count", n))
	return n, nil
}

func normalizeDraft(d domain.DraftImport) (domain.DraftImport, error) {
	if d.GitHubRepoID <= 0 {
		return d, domain.Invalid("github_repo_id", "github repo id required")
	}
	d.FullName = strings.TrimSpace(d.FullName)
	if d.FullName == "" {
		return d, domain.Invalid("full_name", "full name required")
	}
	d.HTMLURL = strings.TrimSpace(d.HTMLURL)
	if d.HTMLURL == "" {
		return d, domain.Invalid("html_url", "html url required")
	}
	if strings.EqualFold(d.Visibility, "private") {
		d.Visibility = "private"
	} else {
		d.Visibility = "public"
	}
	d.DefaultBranch = strings.TrimSpace(d.DefaultBranch)
	if d.DefaultBranch == "" {
		d.DefaultBranch = "main"
	}
	d.Description = normalizeOptional(d.Description)
	d.PushedAt = normalizeOptional(d.PushedAt)
	return d, nil
}

func (e Engine) ListDrafts(ctx context.Context, user domain.UserContext) ([]domain.RepoDraft, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	return e.Drafts.ListDrafts(ctx, user.UserID)
}

func (e Engine) GetDraft(ctx context.Context, user domain.UserContext, id string) (domain.RepoDraft, error) {
	if err := requireUser(user); err != nil {
		return domain.RepoDraft{}, err
	}
	return e.Drafts.GetDraft(ctx, user.UserID, id)
}

// ConvertDraft turns a draft into a frozen project at most once and
// returns the new project's id.
func (e Engine) ConvertDraft(ctx context.Context, user domain.UserContext, draftID string, in ConvertDraftInput) (string, error) {
	if err := requireUser(user); err != nil {
		return "", err
	}
	name, err := ValidateName(in.Name)
	if err != nil {
		return "", err
	}
	next, err := ValidateNextAction(in.NextAction, e.nextActionMax())
	if err != nil {
		return "", err
	}
	p, err := e.Drafts.ConvertDraft(ctx, user.UserID, draftID, domain.NewProject{
		Name:             name,
		FinishDefinition: normalizeOptional(in.FinishDefinition),
		Status:           domain.StatusFrozen,
		NextAction:       next,
	})
	if err != nil {
		return "", err
	}
	if e.Metrics != nil {
		e.Metrics.DraftsConvertedTotal.Inc()
	}
	e.log().Info("draft converted", zap.String("user_id", user.UserID), zap.String("draft_id", draftID), zap.String("project_id", p.ID))
	return p.ID, nil
}

// ConnectionState never fails for anonymous callers; they are simply not connected.
func (e Engine) ConnectionState(ctx context.Context, user domain.UserContext) (domain.ConnectionState, error) {
	if !user.Authenticated() {
		return domain.ConnectionState{}, nil
	}
	c, err := e.Connections.GetConnection(ctx, user.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ConnectionState{}, nil
	}
	if err != nil {
		return domain.ConnectionState{}, err
	}
	login := c.GitHubLogin
	return domain.ConnectionState{Connected: true, GitHubLogin: &login}, nil
}

// AccessToken returns the stored token, or nil when the user never connected.
func (e Engine) AccessToken(ctx context.Context, user domain.UserContext) (*string, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	c, err := e.Connections.GetConnection(ctx, user.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	token := c.AccessToken
	return &token, nil
}

// Connect stores the result of a completed OAuth exchange.
func (e Engine) Connect(ctx context.Context, c domain.GitHubConnection) error {
	if c.UserID == "" {
		return domain.ErrUnauthenticated
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		return domain.Invalid("access_token", "access token required")
	}
	return e.Connections.UpsertConnection(ctx, c)
}

// ImportFromGitHub lists the user's repositories with their stored token
// and imports them as drafts.
func (e Engine) ImportFromGitHub(ctx context.Context, user domain.UserContext) (int, error) {
	if err := requireUser(user); err != nil {
		return 0, err
	}
	if e.Repos == nil {
		return 0, ErrGitHubNotConfigured
	}
	token, err := e.AccessToken(ctx, user)
	if err != nil {
		return 0, err
	}
	if token == nil {
		return 0, domain.Invalid("github", "github account not connected")
	}
	repos, err := e.Repos.ListRepos(ctx, *token)
	if err != nil {
		return 0, fmt.Errorf("failed to list github repositories: %w", err)
	}
	return e.ImportDrafts(ctx, user, repos)
}
