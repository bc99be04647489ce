package pcenginesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal pcengine HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// UserID is sent as X-User-Id when no token is set; dev servers only.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type Project struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
	Status           string  `json:"status"`
	NextAction       string  `json:"next_action"`
	StartDate        *string `json:"start_date,omitempty"`
	FinishDate       *string `json:"finish_date,omitempty"`
	LastReviewedAt   *string `json:"last_reviewed_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type CreateProject struct {
	Name             string  `json:"name"`
	NextAction       string  `json:"next_action"`
	Status           string  `json:"status,omitempty"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
}

// UpdateProject leaves nil fields untouched; an empty string clears one.
type UpdateProject struct {
	Name             *string `json:"name,omitempty"`
	NextAction       *string `json:"next_action,omitempty"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
}

type Snapshot struct {
	ID         string  `json:"id,omitempty"`
	ProjectID  string  `json:"project_id,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Label      *string `json:"label,omitempty"`
	Summary    string  `json:"summary"`
	LeftOut    *string `json:"left_out,omitempty"`
	FutureNote *string `json:"future_note,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

type Decision struct {
	ID                string `json:"id"`
	LaunchedProjectID string `json:"launched_project_id"`
	FrozenProjectID   string `json:"frozen_project_id"`
	SnapshotID        string `json:"snapshot_id"`
	Reason            string `json:"reason"`
	TradeOff          string `json:"trade_off"`
	CreatedAt         string `json:"created_at"`
}

type Override struct {
	LaunchProjectID string        `json:"launch_project_id"`
	FreezeProjectID string        `json:"freeze_project_id"`
	Snapshot        Snapshot      `json:"snapshot"`
	Decision        DecisionInput `json:"decision"`
}

type DecisionInput struct {
	Reason   string `json:"reason"`
	TradeOff string `json:"trade_off"`
}

type OverrideResult struct {
	Launched Project  `json:"launched"`
	Frozen   Project  `json:"frozen"`
	Decision Decision `json:"decision"`
}

type Draft struct {
	ID                 string   `json:"id"`
	GitHubRepoID       int64    `json:"github_repo_id"`
	FullName           string   `json:"full_name"`
	HTMLURL            string   `json:"html_url"`
	Description        *string  `json:"description,omitempty"`
	Visibility         string   `json:"visibility"`
	DefaultBranch      string   `json:"default_branch"`
	PushedAt           *string  `json:"pushed_at,omitempty"`
	Topics             []string `json:"topics"`
	ImportedAt         string   `json:"imported_at"`
	ConvertedProjectID *string  `json:"converted_project_id,omitempty"`
}

type DraftImport struct {
	GitHubRepoID  int64    `json:"github_repo_id"`
	FullName      string   `json:"full_name"`
	HTMLURL       string   `json:"html_url"`
	Description   *string  `json:"description,omitempty"`
	Visibility    string   `json:"visibility,omitempty"`
	DefaultBranch string   `json:"default_branch,omitempty"`
	Topics        []string `json:"topics,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// EventsPage is one page of the audit log. NextCursor is zero on the last page.
type EventsPage struct {
	Items      []Event `json:"items"`
	NextCursor int64   `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given error code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, in CreateProject) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", in, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) UpdateProject(ctx context.Context, id string, in UpdateProject) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, projectPath(id, ""), in, &resp)
	return resp, err
}

// Apply runs launch, freeze, archive or finish. Freeze and finish need snap.
func (c *Client) Apply(ctx context.Context, id, action string, snap *Snapshot) (Project, error) {
	var body any
	if snap != nil {
		body = snap
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(id, "actions/"+url.PathEscape(action)), body, &resp)
	return resp, err
}

func (c *Client) Launch(ctx context.Context, id string) (Project, error) {
	return c.Apply(ctx, id, "launch", nil)
}

func (c *Client) Freeze(ctx context.Context, id string, snap Snapshot) (Project, error) {
	return c.Apply(ctx, id, "freeze", &snap)
}

func (c *Client) Archive(ctx context.Context, id string) (Project, error) {
	return c.Apply(ctx, id, "archive", nil)
}

func (c *Client) Finish(ctx context.Context, id string, snap Snapshot) (Project, error) {
	return c.Apply(ctx, id, "finish", &snap)
}

// Restart creates a new frozen project from an archived one.
func (c *Client) Restart(ctx context.Context, id, nextAction string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(id, "restart"), map[string]string{"next_action": nextAction}, &resp)
	return resp, err
}

func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, projectPath(id, ""), nil, nil)
}

func (c *Client) Snapshots(ctx context.Context, id string) ([]Snapshot, error) {
	var resp []Snapshot
	err := c.do(ctx, http.MethodGet, projectPath(id, "snapshots"), nil, &resp)
	return resp, err
}

func (c *Client) Decisions(ctx context.Context, id string) ([]Decision, error) {
	var resp []Decision
	err := c.do(ctx, http.MethodGet, projectPath(id, "decisions"), nil, &resp)
	return resp, err
}

func (c *Client) Override(ctx context.Context, in Override) (OverrideResult, error) {
	var resp OverrideResult
	err := c.do(ctx, http.MethodPost, "override", in, &resp)
	return resp, err
}

// Review records a continue, freeze or finish decision for an active project.
func (c *Client) Review(ctx context.Context, id, decision string, nextAction *string, snap *Snapshot) (Project, error) {
	body := map[string]any{"decision": decision}
	if nextAction != nil {
		body["next_action"] = *nextAction
	}
	if snap != nil {
		body["snapshot"] = snap
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(id, "review"), body, &resp)
	return resp, err
}

func (c *Client) ReviewQueue(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "review-queue", nil, &resp)
	return resp, err
}

func (c *Client) ListDrafts(ctx context.Context) ([]Draft, error) {
	var resp []Draft
	err := c.do(ctx, http.MethodGet, "drafts", nil, &resp)
	return resp, err
}

// ImportDrafts upserts drafts and returns how many were written.
func (c *Client) ImportDrafts(ctx context.Context, drafts []DraftImport) (int, error) {
	var resp struct {
		Imported int `json:"imported"`
	}
	err := c.do(ctx, http.MethodPost, "drafts", map[string]any{"drafts": drafts}, &resp)
	return resp.Imported, err
}

func (c *Client) ImportFromGitHub(ctx context.Context) (int, error) {
	var resp struct {
		Imported int `json:"imported"`
	}
	err := c.do(ctx, http.MethodPost, "drafts/import-github", nil, &resp)
	return resp.Imported, err
}

// ConvertDraft returns the id of the new frozen project.
func (c *Client) ConvertDraft(ctx context.Context, draftID, name, nextAction string) (string, error) {
	var resp struct {
		ProjectID string `json:"project_id"`
	}
	body := map[string]string{"name": name, "next_action": nextAction}
	err := c.do(ctx, http.MethodPost, "drafts/"+url.PathEscape(draftID)+"/convert", body, &resp)
	return resp.ProjectID, err
}

// Events returns audit events after the cursor, oldest first.
func (c *Client) Events(ctx context.Context, after int64, limit int) (EventsPage, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprintf("%d", after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp EventsPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func projectPath(id, sub string) string {
	p := "projects/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
