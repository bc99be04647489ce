package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/events"
)

const draftColumns = `id,user_id,github_repo_id,full_name,html_url,description,visibility,default_branch,pushed_at,topics_json,imported_at,converted_project_id,converted_at`

func scanDraft(row rowScanner) (domain.RepoDraft, error) {
	var d domain.RepoDraft
	var description, pushedAt, convertedID, convertedAt sql.NullString
	var topics string
	err := row.Scan(&d.ID, &d.UserID, &d.GitHubRepoID, &d.FullName, &d.HTMLURL, &description, &d.Visibility,
		&d.DefaultBranch, &pushedAt, &topics, &d.ImportedAt, &convertedID, &convertedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, domain.ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Description = stringPtr(description)
	d.PushedAt = stringPtr(pushedAt)
	d.ConvertedProjectID = stringPtr(convertedID)
	d.ConvertedAt = stringPtr(convertedAt)
	d.Topics = []string{}
	if topics != "" {
		if err := json.Unmarshal([]byte(topics), &d.Topics); err != nil {
			return d, fmt.Errorf("decode topics for draft %s: %w", d.ID, err)
		}
	}
	return d, nil
}

// UpsertDrafts stores drafts keyed by (user_id, github_repo_id). Existing
// rows get fresh metadata and imported_at; conversion columns are kept.
func (r Repo) UpsertDrafts(ctx context.Context, userID string, drafts []domain.DraftImport) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		stmt, err := tx.PrepareContext(ctx, r.q(`INSERT INTO repo_drafts(`+draftColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,NULL,NULL)
			ON CONFLICT(user_id, github_repo_id) DO UPDATE SET
				full_name=excluded.full_name,
				html_url=excluded.html_url,
				description=excluded.description,
				visibility=excluded.visibility,
				default_branch=excluded.default_branch,
				pushed_at=excluded.pushed_at,
				topics_json=excluded.topics_json,
				imported_at=excluded.imported_at`))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range drafts {
			topics := d.Topics
			if topics == nil {
				topics = []string{}
			}
			data, err := json.Marshal(topics)
			if err != nil {
				return fmt.Errorf("encode topics: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), userID, d.GitHubRepoID, d.FullName, d.HTMLURL,
				nullableStringPtr(d.Description), d.Visibility, d.DefaultBranch, nullableStringPtr(d.PushedAt), string(data), now); err != nil {
				return fmt.Errorf("upsert draft %s: %w", d.FullName, err)
			}
		}
		return r.Events.Append(ctx, tx, events.DraftsImported, "", events.KindDraft, "", userID, events.EventPayload{"count": len(drafts)})
	})
	if err != nil {
		return 0, wrapStoreErr("import drafts", err)
	}
	return len(drafts), nil
}

// ListDrafts returns the user's drafts, most recently imported first.
func (r Repo) ListDrafts(ctx context.Context, userID string) ([]domain.RepoDraft, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+draftColumns+` FROM repo_drafts WHERE user_id=? ORDER BY imported_at DESC, full_name`), userID)
	if err != nil {
		return nil, fmt.Errorf("fetch drafts: %w", err)
	}
	defer rows.Close()
	var res []domain.RepoDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch drafts: %w", err)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) GetDraft(ctx context.Context, userID, id string) (domain.RepoDraft, error) {
	d, err := scanDraft(r.DB.QueryRowContext(ctx, r.q(`SELECT `+draftColumns+` FROM repo_drafts WHERE id=? AND user_id=?`), id, userID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return d, fmt.Errorf("fetch draft: %w", err)
	}
	return d, err
}

// ConvertDraft creates a frozen project whose narrative link is the draft's
// repository URL and marks the draft converted, in one transaction. The
// draft update only applies while converted_project_id is still NULL, so a
// concurrent conversion rolls this one back entirely.
func (r Repo) ConvertDraft(ctx context.Context, userID, draftID string, np domain.NewProject) (domain.Project, error) {
	var created domain.Project
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		d, err := scanDraft(tx.QueryRowContext(ctx, r.q(`SELECT `+draftColumns+` FROM repo_drafts WHERE id=? AND user_id=?`), draftID, userID))
		if err != nil {
			return err
		}
		if d.ConvertedProjectID != nil {
			return domain.ErrAlreadyConverted
		}
		link := d.HTMLURL
		np.NarrativeLink = &link
		np.Status = domain.StatusFrozen
		p, err := r.insertProjectTx(ctx, tx, np, false, 0)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.q(`UPDATE repo_drafts SET converted_project_id=?, converted_at=? WHERE id=? AND user_id=? AND converted_project_id IS NULL`),
			p.ID, r.now(), draftID, userID)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return domain.ErrAlreadyConverted
		}
		if err := r.Events.Append(ctx, tx, events.DraftConverted, p.ID, events.KindDraft, draftID, userID, events.EventPayload{
			"full_name":  d.FullName,
			"project_id": p.ID,
		}); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return domain.Project{}, wrapStoreErr("convert draft", err)
	}
	return created, nil
}
