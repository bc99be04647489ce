package domain

type Status string

const (
	StatusActive   Status = "active"
	StatusFrozen   Status = "frozen"
	StatusArchived Status = "archived"
)

// Statuses lists every persisted project status.
var Statuses = []Status{StatusActive, StatusFrozen, StatusArchived}

type SnapshotKind string

const (
	SnapshotFreeze SnapshotKind = "freeze"
	SnapshotFinish SnapshotKind = "finish"
)

type Project struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	NarrativeLink    *string `json:"narrative_link,omitempty"`
	WhyNow           *string `json:"why_now,omitempty"`
	FinishDefinition *string `json:"finish_definition,omitempty"`
	Status           Status  `json:"status" enum:"active,frozen,archived"`
	NextAction       string  `json:"next_action"`
	StartDate        *string `json:"start_date,omitempty" format:"date-time"`
	FinishDate       *string `json:"finish_date,omitempty" format:"date-time"`
	LastReviewedAt   *string `json:"last_reviewed_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

// NewProject is a validated project row ready to be inserted.
type NewProject struct {
	Name             string
	NarrativeLink    *string
	WhyNow           *string
	FinishDefinition *string
	Status           Status
	NextAction       string
}

// Patch marks an optional column for writing. A nil Value stores NULL.
type Patch struct {
	Set   bool
	Value *string
}

// ProjectPatch carries a partial update; nil and unset fields are left untouched.
type ProjectPatch struct {
	Name             *string
	NarrativeLink    Patch
	WhyNow           Patch
	FinishDefinition Patch
	NextAction       *string
	LastReviewedAt   *string
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Name == nil && !p.NarrativeLink.Set && !p.WhyNow.Set &&
		!p.FinishDefinition.Set && p.NextAction == nil && p.LastReviewedAt == nil
}

type ProjectSnapshot struct {
	ID         string       `json:"id"`
	ProjectID  string       `json:"project_id"`
	Kind       SnapshotKind `json:"kind" enum:"freeze,finish"`
	Label      *string      `json:"label,omitempty"`
	Summary    string       `json:"summary"`
	LeftOut    *string      `json:"left_out,omitempty"`
	FutureNote *string      `json:"future_note,omitempty"`
	CreatedAt  string       `json:"created_at" format:"date-time"`
}

// SnapshotFields is the normalized text captured at a freeze or finish.
type SnapshotFields struct {
	Label      *string
	Summary    string
	LeftOut    *string
	FutureNote *string
}

// DecisionFields is the normalized justification for an active-cap override.
type DecisionFields struct {
	Reason   string
	TradeOff string
}

type OverrideDecision struct {
	ID                string `json:"id"`
	LaunchedProjectID string `json:"launched_project_id"`
	FrozenProjectID   string `json:"frozen_project_id"`
	SnapshotID        string `json:"snapshot_id"`
	Reason            string `json:"reason"`
	TradeOff          string `json:"trade_off"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

// OverrideRecord is everything the store needs to apply an override atomically.
type OverrideRecord struct {
	LaunchProjectID string
	FreezeProjectID string
	Snapshot        SnapshotFields
	Decision        DecisionFields
}

// OverrideResult holds both sides of a committed override.
type OverrideResult struct {
	Launched Project          `json:"launched"`
	Frozen   Project          `json:"frozen"`
	Decision OverrideDecision `json:"decision"`
}

type RepoDraft struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"user_id"`
	GitHubRepoID       int64    `json:"github_repo_id"`
	FullName           string   `json:"full_name"`
	HTMLURL            string   `json:"html_url"`
	Description        *string  `json:"description,omitempty"`
	Visibility         string   `json:"visibility" enum:"public,private"`
	DefaultBranch      string   `json:"default_branch"`
	PushedAt           *string  `json:"pushed_at,omitempty" format:"date-time"`
	Topics             []string `json:"topics"`
	ImportedAt         string   `json:"imported_at" format:"date-time"`
	ConvertedProjectID *string  `json:"converted_project_id,omitempty"`
	ConvertedAt        *string  `json:"converted_at,omitempty" format:"date-time"`
}

// DraftImport is one repository listed from GitHub, before it is stored.
type DraftImport struct {
	GitHubRepoID  int64    `json:"github_repo_id"`
	FullName      string   `json:"full_name"`
	HTMLURL       string   `json:"html_url"`
	Description   *string  `json:"description,omitempty"`
	Visibility    string   `json:"visibility,omitempty" enum:"public,private"`
	DefaultBranch string   `json:"default_branch,omitempty"`
	PushedAt      *string  `json:"pushed_at,omitempty" format:"date-time"`
	Topics        []string `json:"topics,omitempty"`
}

type GitHubConnection struct {
	UserID       string `json:"user_id"`
	GitHubUserID int64  `json:"github_user_id"`
	GitHubLogin  string `json:"github_login"`
	AccessToken  string `json:"-"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type ConnectionState struct {
	Connected   bool    `json:"connected"`
	GitHubLogin *string `json:"github_login,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// UserContext identifies the authenticated caller. The zero value is anonymous.
type UserContext struct {
	UserID string
}

func (u UserContext) Authenticated() bool {
	return u.UserID != ""
}
