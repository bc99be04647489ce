package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/and27/pcengine/internal/domain"
)

func (r Repo) insertSnapshotTx(ctx context.Context, tx *sql.Tx, projectID string, kind domain.SnapshotKind, snap domain.SnapshotFields) (domain.ProjectSnapshot, error) {
	s := domain.ProjectSnapshot{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Kind:       kind,
		Label:      snap.Label,
		Summary:    snap.Summary,
		LeftOut:    snap.LeftOut,
		FutureNote: snap.FutureNote,
		CreatedAt:  r.now(),
	}
	_, err := tx.ExecContext(ctx, r.q(`INSERT INTO project_snapshots(id,project_id,kind,label,summary,left_out,future_note,created_at) VALUES (?,?,?,?,?,?,?,?)`),
		s.ID, s.ProjectID, string(s.Kind), nullableStringPtr(s.Label), s.Summary, nullableStringPtr(s.LeftOut), nullableStringPtr(s.FutureNote), s.CreatedAt)
	if err != nil {
		return s, fmt.Errorf("insert snapshot: %w", err)
	}
	return s, nil
}

// ListSnapshots returns a project's snapshot history, newest first.
func (r Repo) ListSnapshots(ctx context.Context, projectID string) ([]domain.ProjectSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,project_id,kind,label,summary,left_out,future_note,created_at FROM project_snapshots WHERE project_id=? ORDER BY created_at DESC, id`), projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch project snapshots: %w", err)
	}
	defer rows.Close()
	var res []domain.ProjectSnapshot
	for rows.Next() {
		var s domain.ProjectSnapshot
		var kind string
		var label, leftOut, futureNote sql.NullString
		if err := rows.Scan(&s.ID, &s.ProjectID, &kind, &label, &s.Summary, &leftOut, &futureNote, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("fetch project snapshots: %w", err)
		}
		s.Kind = domain.SnapshotKind(kind)
		s.Label = stringPtr(label)
		s.LeftOut = stringPtr(leftOut)
		s.FutureNote = stringPtr(futureNote)
		res = append(res, s)
	}
	return res, rows.Err()
}
