package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/and27/pcengine/internal/domain"
	"github.com/and27/pcengine/internal/events"
)

// UpsertConnection stores the user's GitHub link, replacing any previous token.
func (r Repo) UpsertConnection(ctx context.Context, c domain.GitHubConnection) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		if _, err := tx.ExecContext(ctx, r.q(`INSERT INTO github_connections(user_id,github_user_id,github_login,access_token,scope,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(user_id) DO UPDATE SET
				github_user_id=excluded.github_user_id,
				github_login=excluded.github_login,
				access_token=excluded.access_token,
				scope=excluded.scope,
				updated_at=excluded.updated_at`),
			c.UserID, c.GitHubUserID, c.GitHubLogin, c.AccessToken, c.Scope, now, now); err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, events.GitHubConnected, "", events.KindConnection, c.UserID, c.UserID, events.EventPayload{"github_login": c.GitHubLogin})
	})
	if err != nil {
		return fmt.Errorf("failed to save github connection: %w", err)
	}
	return nil
}

func (r Repo) GetConnection(ctx context.Context, userID string) (domain.GitHubConnection, error) {
	var c domain.GitHubConnection
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT user_id,github_user_id,github_login,access_token,scope,created_at,updated_at FROM github_connections WHERE user_id=?`), userID).
		Scan(&c.UserID, &c.GitHubUserID, &c.GitHubLogin, &c.AccessToken, &c.Scope, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("fetch github connection: %w", err)
	}
	return c, nil
}
