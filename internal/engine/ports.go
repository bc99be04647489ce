package engine

import (
	"context"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/repo"
)

// ProjectStore is the set of atomic operations the lifecycle needs from
// storage. Cap-checked and snapshot-bearing operations must each be a single
// atomic unit in the store; the engine never combines two calls to get one
// guarantee.
type ProjectStore interface {
	CreateProject(ctx context.Context, actorID string, np domain.NewProject, opts repo.CreateOptions) (domain.Project, error)
	ListProjects(ctx context.Context, status domain.Status) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	UpdateProject(ctx context.Context, actorID, id string, expected domain.Status, patch domain.ProjectPatch) (domain.Project, error)
	FreezeWithSnapshot(ctx context.Context, actorID, id string, snap domain.SnapshotFields) (domain.Project, error)
	FinishWithSnapshot(ctx context.Context, actorID, id string, snap domain.SnapshotFields) (domain.Project, error)
	LaunchWithActiveCap(ctx context.Context, actorID, id string, maxActive int) (domain.Project, error)
	// ArchiveProject returns nil, nil when expected no longer matches.
	ArchiveProject(ctx context.Context, actorID, id string, expected domain.Status) (*domain.Project, error)
	OverrideWithFreeze(ctx context.Context, actorID string, rec domain.OverrideRecord) (domain.OverrideResult, error)
	RestartArchived(ctx context.Context, actorID, id, nextAction string) (domain.Project, error)
	DeleteArchived(ctx context.Context, actorID, id string) (bool, error)
	ListSnapshots(ctx context.Context, projectID string) ([]domain.ProjectSnapshot, error)
	ListDecisions(ctx context.Context, projectID string) ([]domain.OverrideDecision, error)
	CountActive(ctx context.Context) (int, error)
}

// DraftStore is scoped by user id on every call.
type DraftStore interface {
	UpsertDrafts(ctx context.Context, userID string, drafts []domain.DraftImport) (int, error)
	ListDrafts(ctx context.Context, userID string) ([]domain.RepoDraft, error)
	GetDraft(ctx context.Context, userID, id string) (domain.RepoDraft, error)
	// ConvertDraft creates the project and marks the draft in one unit. The
	// project's narrative link is taken from the draft.
	ConvertDraft(ctx context.Context, userID, draftID string, np domain.NewProject) (domain.Project, error)
}

type ConnectionStore interface {
	GetConnection(ctx context.Context, userID string) (domain.GitHubConnection, error)
	UpsertConnection(ctx context.Context, c domain.GitHubConnection) error
}

type EventStore interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, projectID string) (int64, error)
}

// RepoLister lists the repositories visible to a GitHub access token.
type RepoLister interface {
	ListRepos(ctx context.Context, token string) ([]domain.DraftImport, error)
}
