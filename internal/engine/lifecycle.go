package engine

import (
	"context"
	"fmt"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/repo"
)

// CreateProjectInput is the caller's request for a new project. An empty
// Status uses the configured default.
type CreateProjectInput struct {
	Name             string
	NarrativeLink    *string
	WhyNow           *string
	FinishDefinition *string
	Status           string
	NextAction       string
}

// UpdateProjectInput edits descriptive fields. A non-nil blank optional
// field clears it. Status is never changed here.
type UpdateProjectInput struct {
	Name             *string
	NarrativeLink    *string
	WhyNow           *string
	FinishDefinition *string
	NextAction       *string
}

// ensureTransition reports whether action may run from status.
func ensureTransition(action domain.Action, status domain.Status) error {
	ok := false
	switch action {
	case domain.ActionLaunch:
		ok = status == domain.StatusFrozen
	case domain.ActionFreeze:
		ok = status == domain.StatusActive
	case domain.ActionArchive, domain.ActionFinish:
		ok = status == domain.StatusActive || status == domain.StatusFrozen
	case domain.ActionRestart, domain.ActionDelete:
		ok = status == domain.StatusArchived
	}
	if !ok {
		return &domain.InvalidTransitionError{Action: action, Status: status}
	}
	return nil
}

func (e Engine) CreateProject(ctx context.Context, actorID string, in CreateProjectInput) (domain.Project, error) {
	np, err := e.newProject(in)
	if err != nil {
		e.record(domain.ActionCreate, "", err)
		return domain.Project{}, err
	}
	p, err := e.Projects.CreateProject(ctx, actorID, np, repo.CreateOptions{
		EnforceActiveCap: true,
		MaxActive:        e.activeCap(),
	})
	e.record(domain.ActionCreate, p.ID, err)
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) newProject(in CreateProjectInput) (domain.NewProject, error) {
	name, err := ValidateName(in.Name)
	if err != nil {
		return domain.NewProject{}, err
	}
	nextAction, err := ValidateNextAction(in.NextAction, e.nextActionMax())
	if err != nil {
		return domain.NewProject{}, err
	}
	rawStatus := in.Status
	if rawStatus == "" {
		rawStatus = e.Lifecycle.DefaultStatus
	}
	if rawStatus == "" {
		rawStatus = string(domain.StatusActive)
	}
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return domain.NewProject{}, err
	}
	return domain.NewProject{
		Name:             name,
		NarrativeLink:    normalizeOptional(in.NarrativeLink),
		WhyNow:           normalizeOptional(in.WhyNow),
		FinishDefinition: normalizeOptional(in.FinishDefinition),
		Status:           status,
		NextAction:       nextAction,
	}, nil
}

// ListProjects lists projects; an empty status lists all of them.
func (e Engine) ListProjects(ctx context.Context, status string) ([]domain.Project, error) {
	var filter domain.Status
	if status != "" {
		s, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = s
	}
	return e.Projects.ListProjects(ctx, filter)
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	if id == "" {
		return domain.Project{}, domain.Invalid("id", "project id required")
	}
	return e.Projects.GetProject(ctx, id)
}

// UpdateProject edits descriptive fields, guarded by the status observed
// when the project was read.
func (e Engine) UpdateProject(ctx context.Context, actorID, id string, in UpdateProjectInput) (domain.Project, error) {
	var patch domain.ProjectPatch
	if in.Name != nil {
		name, err := ValidateName(*in.Name)
		if err != nil {
			return domain.Project{}, err
		}
		patch.Name = &name
	}
	if in.NextAction != nil {
		next, err := ValidateNextAction(*in.NextAction, e.nextActionMax())
		if err != nil {
			return domain.Project{}, err
		}
		patch.NextAction = &next
	}
	if in.NarrativeLink != nil {
		patch.NarrativeLink = domain.Patch{Set: true, Value: normalizeOptional(in.NarrativeLink)}
	}
	if in.WhyNow != nil {
		patch.WhyNow = domain.Patch{Set: true, Value: normalizeOptional(in.WhyNow)}
	}
	if in.FinishDefinition != nil {
		patch.FinishDefinition = domain.Patch{Set: true, Value: normalizeOptional(in.FinishDefinition)}
	}
	if patch.Empty() {
		return domain.Project{}, domain.Invalid("patch", "no project updates provided")
	}
	current, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	return e.Projects.UpdateProject(ctx, actorID, id, current.Status, patch)
}

// Apply runs a lifecycle action against an existing project. Freeze and
// finish require a snapshot.
func (e Engine) Apply(ctx context.Context, actorID, id string, action domain.Action, snap *SnapshotInput) (domain.Project, error) {
	p, err := e.apply(ctx, actorID, id, action, snap)
	e.record(action, id, err)
	return p, err
}

func (e Engine) apply(ctx context.Context, actorID, id string, action domain.Action, snap *SnapshotInput) (domain.Project, error) {
	switch action {
	case domain.ActionLaunch, domain.ActionFreeze, domain.ActionArchive, domain.ActionFinish:
	case domain.ActionRestart, domain.ActionDelete, domain.ActionCreate:
		return domain.Project{}, domain.Invalid("action", "%s has its own operation", action)
	default:
		return domain.Project{}, domain.Invalid("action", "unknown action %s", action)
	}
	var fields domain.SnapshotFields
	if action.RequiresSnapshot() {
		f, err := BuildSnapshot(snap)
		if err != nil {
			return domain.Project{}, err
		}
		fields = f
	}
	current, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := ensureTransition(action, current.Status); err != nil {
		return domain.Project{}, err
	}

	switch action {
	case domain.ActionLaunch:
		return e.Projects.LaunchWithActiveCap(ctx, actorID, id, e.activeCap())
	case domain.ActionFreeze:
		return e.Projects.FreezeWithSnapshot(ctx, actorID, id, fields)
	case domain.ActionFinish:
		return e.Projects.FinishWithSnapshot(ctx, actorID, id, fields)
	default:
		archived, err := e.Projects.ArchiveProject(ctx, actorID, id, current.Status)
		if err != nil {
			return domain.Project{}, err
		}
		if archived == nil {
			return domain.Project{}, domain.ErrConcurrentModification
		}
		return *archived, nil
	}
}

func (e Engine) Launch(ctx context.Context, actorID, id string) (domain.Project, error) {
	return e.Apply(ctx, actorID, id, domain.ActionLaunch, nil)
}

func (e Engine) Freeze(ctx context.Context, actorID, id string, snap SnapshotInput) (domain.Project, error) {
	return e.Apply(ctx, actorID, id, domain.ActionFreeze, &snap)
}

func (e Engine) Archive(ctx context.Context, actorID, id string) (domain.Project, error) {
	return e.Apply(ctx, actorID, id, domain.ActionArchive, nil)
}

func (e Engine) Finish(ctx context.Context, actorID, id string, snap SnapshotInput) (domain.Project, error) {
	return e.Apply(ctx, actorID, id, domain.ActionFinish, &snap)
}

// Restart creates a new frozen project from an archived one.
func (e Engine) Restart(ctx context.Context, actorID, id, nextAction string) (domain.Project, error) {
	p, err := e.restart(ctx, actorID, id, nextAction)
	e.record(domain.ActionRestart, id, err)
	return p, err
}

func (e Engine) restart(ctx context.Context, actorID, id, nextAction string) (domain.Project, error) {
	next, err := ValidateNextAction(nextAction, e.nextActionMax())
	if err != nil {
		return domain.Project{}, err
	}
	current, err := e.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := ensureTransition(domain.ActionRestart, current.Status); err != nil {
		return domain.Project{}, err
	}
	return e.Projects.RestartArchived(ctx, actorID, id, next)
}

// Delete permanently removes an archived project.
func (e Engine) Delete(ctx context.Context, actorID, id string) error {
	err := e.delete(ctx, actorID, id)
	e.record(domain.ActionDelete, id, err)
	return err
}

func (e Engine) delete(ctx context.Context, actorID, id string) error {
	current, err := e.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureTransition(domain.ActionDelete, current.Status); err != nil {
		return err
	}
	ok, err := e.Projects.DeleteArchived(ctx, actorID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("project status changed before deletion: %w", domain.ErrConcurrentModification)
	}
	return nil
}

// Snapshots returns the project's snapshot history, newest first.
func (e Engine) Snapshots(ctx context.Context, projectID string) ([]domain.ProjectSnapshot, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Projects.ListSnapshots(ctx, projectID)
}

// Decisions returns the override decisions that touched the project.
func (e Engine) Decisions(ctx context.Context, projectID string) ([]domain.OverrideDecision, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.Projects.ListDecisions(ctx, projectID)
}
