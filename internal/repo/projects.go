package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/events"
)

const projectColumns = `id,name,narrative_link,why_now,finish_definition,status,next_action,start_date,finish_date,last_reviewed_at,created_at,updated_at`

const activeCountPredicate = `(SELECT COUNT(*) FROM projects WHERE status='active') < ?`

// CreateOptions controls the cap check applied on insert.
type CreateOptions struct {
	EnforceActiveCap bool
	MaxActive        int
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var status string
	var narrative, whyNow, finishDef, start, finish, reviewed sql.NullString
	err := row.Scan(&p.ID, &p.Name, &narrative, &whyNow, &finishDef, &status, &p.NextAction,
		&start, &finish, &reviewed, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Status = domain.Status(status)
	p.NarrativeLink = stringPtr(narrative)
	p.WhyNow = stringPtr(whyNow)
	p.FinishDefinition = stringPtr(finishDef)
	p.StartDate = stringPtr(start)
	p.FinishDate = stringPtr(finish)
	p.LastReviewedAt = stringPtr(reviewed)
	return p, nil
}

func (r Repo) getProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id))
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return p, fmt.Errorf("fetch project: %w", err)
	}
	return p, err
}

// ListProjects returns projects with the most recently started first and
// never-started projects last. An empty status lists every project.
func (r Repo) ListProjects(ctx context.Context, status domain.Status) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY CASE WHEN start_date IS NULL THEN 1 ELSE 0 END, start_date DESC, created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch projects: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE status='active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active projects: %w", err)
	}
	return n, nil
}

// CreateProject inserts a project. When the cap is enforced and the row is
// active, the insert is conditional on the live active count so that two
// concurrent creates can never both take the last slot.
func (r Repo) CreateProject(ctx context.Context, actorID string, np domain.NewProject, opts CreateOptions) (domain.Project, error) {
	if np.Status == "" {
		np.Status = domain.StatusFrozen
	}
	var created domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		p, err := r.insertProjectTx(ctx, tx, np, opts.EnforceActiveCap && np.Status == domain.StatusActive, opts.MaxActive)
		if err != nil {
			return err
		}
		if err := r.Events.Append(ctx, tx, events.ProjectCreated, p.ID, events.KindProject, p.ID, actorID, events.EventPayload{
			"name":   p.Name,
			"status": p.Status,
		}); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return domain.Project{}, wrapStoreErr("create project", err)
	}
	return created, nil
}

func (r Repo) insertProjectTx(ctx context.Context, tx *sql.Tx, np domain.NewProject, enforceCap bool, maxActive int) (domain.Project, error) {
	now := r.now()
	p := domain.Project{
		ID:               uuid.NewString(),
		Name:             np.Name,
		NarrativeLink:    np.NarrativeLink,
		WhyNow:           np.WhyNow,
		FinishDefinition: np.FinishDefinition,
		Status:           np.Status,
		NextAction:       np.NextAction,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Status == domain.StatusActive {
		start := now
		p.StartDate = &start
	}
	args := []any{p.ID, p.Name, nullableStringPtr(p.NarrativeLink), nullableStringPtr(p.WhyNow), nullableStringPtr(p.FinishDefinition),
		string(p.Status), p.NextAction, nullableStringPtr(p.StartDate), nil, nil, p.CreatedAt, p.UpdatedAt}
	if !enforceCap {
		_, err := tx.ExecContext(ctx, r.q(`INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`), args...)
		return p, err
	}
	if err := r.lockActiveCap(ctx, tx); err != nil {
		return p, err
	}
	args = append(args, maxActive)
	res, err := tx.ExecContext(ctx, r.q(`INSERT INTO projects(`+projectColumns+`) SELECT ?,?,?,?,?,?,?,?,?,?,?,? WHERE `+activeCountPredicate), args...)
	if err != nil {
		return p, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return p, domain.ErrActiveCapReached
	}
	return p, nil
}

// UpdateProject applies a partial update only while the stored status still
// equals expected.
func (r Repo) UpdateProject(ctx context.Context, actorID, id string, expected domain.Status, patch domain.ProjectPatch) (domain.Project, error) {
	var (
		fields  []string
		args    []any
		changed []string
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
		changed = append(changed, col)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.NarrativeLink.Set {
		set("narrative_link", nullableStringPtr(patch.NarrativeLink.Value))
	}
	if patch.WhyNow.Set {
		set("why_now", nullableStringPtr(patch.WhyNow.Value))
	}
	if patch.FinishDefinition.Set {
		set("finish_definition", nullableStringPtr(patch.FinishDefinition.Value))
	}
	if patch.NextAction != nil {
		set("next_action", *patch.NextAction)
	}
	if patch.LastReviewedAt != nil {
		set("last_reviewed_at", *patch.LastReviewedAt)
	}
	if len(fields) == 0 {
		return domain.Project{}, domain.Invalid("patch", "no project updates provided")
	}
	fields = append(fields, "updated_at=?")
	args = append(args, r.now(), id, string(expected))
	evtType := events.ProjectUpdated
	if patch.LastReviewedAt != nil {
		evtType = events.ProjectReviewed
	}

	var updated domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.q(fmt.Sprintf(`UPDATE projects SET %s WHERE id=? AND status=?`, strings.Join(fields, ","))), args...)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			if _, err := r.getProjectTx(ctx, tx, id); err != nil {
				return err
			}
			return domain.ErrConcurrentModification
		}
		if err := r.Events.Append(ctx, tx, evtType, id, events.KindProject, id, actorID, events.EventPayload{"fields": changed}); err != nil {
			return err
		}
		updated, err = r.getProjectTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Project{}, wrapStoreErr("update project", err)
	}
	return updated, nil
}

// LaunchWithActiveCap moves a frozen project to active if fewer than
// maxActive projects are active at write time.
func (r Repo) LaunchWithActiveCap(ctx context.Context, actorID, id string, maxActive int) (domain.Project, error) {
	var launched domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.lockActiveCap(ctx, tx); err != nil {
			return err
		}
		now := r.now()
		res, err := tx.ExecContext(ctx, r.q(`UPDATE projects SET status='active', start_date=COALESCE(start_date, ?), updated_at=? WHERE id=? AND status='frozen' AND `+activeCountPredicate),
			now, now, id, maxActive)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			current, err := r.getProjectTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusFrozen {
				return domain.ErrActiveCapReached
			}
			return &domain.InvalidTransitionError{Action: domain.ActionLaunch, Status: current.Status}
		}
		if err := r.Events.Append(ctx, tx, events.ProjectLaunched, id, events.KindProject, id, actorID, events.EventPayload{"max_active": maxActive}); err != nil {
			return err
		}
		launched, err = r.getProjectTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Project{}, wrapStoreErr("launch project", err)
	}
	return launched, nil
}

// FreezeWithSnapshot moves an active project to frozen and records the
// snapshot in the same transaction.
func (r Repo) FreezeWithSnapshot(ctx context.Context, actorID, id string, snap domain.SnapshotFields) (domain.Project, error) {
	p, err := r.snapshotTransition(ctx, actorID, id, domain.ActionFreeze, snap)
	if err != nil {
		return domain.Project{}, wrapStoreErr("freeze project", err)
	}
	return p, nil
}

// FinishWithSnapshot archives an active or frozen project, stamps
// finish_date the first time, and records the snapshot.
func (r Repo) FinishWithSnapshot(ctx context.Context, actorID, id string, snap domain.SnapshotFields) (domain.Project, error) {
	p, err := r.snapshotTransition(ctx, actorID, id, domain.ActionFinish, snap)
	if err != nil {
		return domain.Project{}, wrapStoreErr("finish project", err)
	}
	return p, nil
}

func (r Repo) snapshotTransition(ctx context.Context, actorID, id string, action domain.Action, snap domain.SnapshotFields) (domain.Project, error) {
	var out domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.freezeOrFinishTx(ctx, tx, id, action); err != nil {
			return err
		}
		s, err := r.insertSnapshotTx(ctx, tx, id, action.SnapshotKind(), snap)
		if err != nil {
			return err
		}
		evtType := events.ProjectFrozen
		if action == domain.ActionFinish {
			evtType = events.ProjectFinished
		}
		if err := r.Events.Append(ctx, tx, evtType, id, events.KindProject, id, actorID, events.EventPayload{
			"snapshot_id": s.ID,
			"summary":     s.Summary,
		}); err != nil {
			return err
		}
		out, err = r.getProjectTx(ctx, tx, id)
		return err
	})
	return out, err
}

func (r Repo) freezeOrFinishTx(ctx context.Context, tx *sql.Tx, id string, action domain.Action) error {
	now := r.now()
	var (
		res sql.Result
		err error
	)
	switch action {
	case domain.ActionFreeze:
		res, err = tx.ExecContext(ctx, r.q(`UPDATE projects SET status='frozen', updated_at=? WHERE id=? AND status='active'`), now, id)
	case domain.ActionFinish:
		res, err = tx.ExecContext(ctx, r.q(`UPDATE projects SET status='archived', finish_date=COALESCE(finish_date, ?), updated_at=? WHERE id=? AND status IN ('active','frozen')`), now, now, id)
	default:
		return fmt.Errorf("%s does not record a snapshot", action)
	}
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return r.transitionMiss(ctx, tx, id, action)
	}
	return nil
}

// transitionMiss explains why a guarded update matched no row.
func (r Repo) transitionMiss(ctx context.Context, tx *sql.Tx, id string, action domain.Action) error {
	current, err := r.getProjectTx(ctx, tx, id)
	if err != nil {
		return err
	}
	return &domain.InvalidTransitionError{Action: action, Status: current.Status}
}

// ArchiveProject archives the project only if its status still equals
// expected. A nil project with a nil error means the expectation was stale.
func (r Repo) ArchiveProject(ctx context.Context, actorID, id string, expected domain.Status) (*domain.Project, error) {
	var archived *domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.q(`UPDATE projects SET status='archived', updated_at=? WHERE id=? AND status=?`), r.now(), id, string(expected))
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			archived = nil
			return nil
		}
		if err := r.Events.Append(ctx, tx, events.ProjectArchived, id, events.KindProject, id, actorID, events.EventPayload{"from": expected}); err != nil {
			return err
		}
		p, err := r.getProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		archived = &p
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("archive project", err)
	}
	return archived, nil
}

// OverrideWithFreeze freezes one active project with a snapshot and
// launches one frozen project without the cap check, as one unit.
func (r Repo) OverrideWithFreeze(ctx context.Context, actorID string, rec domain.OverrideRecord) (domain.OverrideResult, error) {
	var out domain.OverrideResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.lockActiveCap(ctx, tx); err != nil {
			return err
		}
		if err := r.freezeOrFinishTx(ctx, tx, rec.FreezeProjectID, domain.ActionFreeze); err != nil {
			return err
		}
		snap, err := r.insertSnapshotTx(ctx, tx, rec.FreezeProjectID, domain.SnapshotFreeze, rec.Snapshot)
		if err != nil {
			return err
		}
		now := r.now()
		res, err := tx.ExecContext(ctx, r.q(`UPDATE projects SET status='active', start_date=COALESCE(start_date, ?), updated_at=? WHERE id=? AND status='frozen'`), now, now, rec.LaunchProjectID)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return r.transitionMiss(ctx, tx, rec.LaunchProjectID, domain.ActionLaunch)
		}
		decision := domain.OverrideDecision{
			ID:                uuid.NewString(),
			LaunchedProjectID: rec.LaunchProjectID,
			FrozenProjectID:   rec.FreezeProjectID,
			SnapshotID:        snap.ID,
			Reason:            rec.Decision.Reason,
			TradeOff:          rec.Decision.TradeOff,
			CreatedAt:         now,
		}
		if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO override_decisions(id,launched_project_id,frozen_project_id,snapshot_id,reason,trade_off,created_at) VALUES (?,?,?,?,?,?,?)`),
			decision.ID, decision.LaunchedProjectID, decision.FrozenProjectID, decision.SnapshotID, decision.Reason, decision.TradeOff, decision.CreatedAt); err != nil {
			return err
		}
		payload := events.EventPayload{
			"launched_project_id": rec.LaunchProjectID,
			"frozen_project_id":   rec.FreezeProjectID,
			"decision_id":         decision.ID,
			"snapshot_id":         snap.ID,
		}
		if err := r.Events.Append(ctx, tx, events.ProjectOverride, rec.LaunchProjectID, events.KindProject, rec.LaunchProjectID, actorID, payload); err != nil {
			return err
		}
		if err := r.Events.Append(ctx, tx, events.ProjectFrozen, rec.FreezeProjectID, events.KindProject, rec.FreezeProjectID, actorID, events.EventPayload{
			"snapshot_id": snap.ID,
			"override":    decision.ID,
		}); err != nil {
			return err
		}
		if out.Launched, err = r.getProjectTx(ctx, tx, rec.LaunchProjectID); err != nil {
			return err
		}
		if out.Frozen, err = r.getProjectTx(ctx, tx, rec.FreezeProjectID); err != nil {
			return err
		}
		out.Decision = decision
		return nil
	})
	if err != nil {
		return domain.OverrideResult{}, wrapStoreErr("override active cap", err)
	}
	return out, nil
}

// RestartArchived creates a new frozen project from an archived one. The
// archived source row is left untouched.
func (r Repo) RestartArchived(ctx context.Context, actorID, id, nextAction string) (domain.Project, error) {
	var restarted domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		source, err := r.getProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if source.Status != domain.StatusArchived {
			return &domain.InvalidTransitionError{Action: domain.ActionRestart, Status: source.Status}
		}
		p, err := r.insertProjectTx(ctx, tx, domain.NewProject{
			Name:             source.Name,
			NarrativeLink:    source.NarrativeLink,
			WhyNow:           source.WhyNow,
			FinishDefinition: source.FinishDefinition,
			Status:           domain.StatusFrozen,
			NextAction:       nextAction,
		}, false, 0)
		if err != nil {
			return err
		}
		if err := r.Events.Append(ctx, tx, events.ProjectRestarted, p.ID, events.KindProject, p.ID, actorID, events.EventPayload{"source_project_id": id}); err != nil {
			return err
		}
		restarted = p
		return nil
	})
	if err != nil {
		return domain.Project{}, wrapStoreErr("restart project", err)
	}
	return restarted, nil
}

// DeleteArchived removes an archived project and its snapshots. It reports
// false when the project was not archived at delete time.
func (r Repo) DeleteArchived(ctx context.Context, actorID, id string) (bool, error) {
	var deleted bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.q(`DELETE FROM projects WHERE id=? AND status='archived'`), id)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		deleted = affected > 0
		if !deleted {
			return nil
		}
		return r.Events.Append(ctx, tx, events.ProjectDeleted, id, events.KindProject, id, actorID, nil)
	})
	if err != nil {
		return false, wrapStoreErr("delete project", err)
	}
	return deleted, nil
}

// ListDecisions returns override decisions that launched or froze the project.
func (r Repo) ListDecisions(ctx context.Context, projectID string) ([]domain.OverrideDecision, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,launched_project_id,frozen_project_id,snapshot_id,reason,trade_off,created_at FROM override_decisions
		WHERE launched_project_id=? OR frozen_project_id=? ORDER BY created_at DESC, id`), projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch override decisions: %w", err)
	}
	defer rows.Close()
	var res []domain.OverrideDecision
	for rows.Next() {
		var d domain.OverrideDecision
		if err := rows.Scan(&d.ID, &d.LaunchedProjectID, &d.FrozenProjectID, &d.SnapshotID, &d.Reason, &d.TradeOff, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("fetch override decisions: %w", err)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// wrapStoreErr keeps domain errors intact and prefixes everything else
// with the failing operation.
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	var te *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ve), errors.As(err, &te),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrActiveCapReached),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrAlreadyConverted):
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
