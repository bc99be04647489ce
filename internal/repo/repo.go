package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/and27/pcengine/internal/db"
	"github.com/and27/pcengine/internal/events"
)

// activeCapLockKey serializes cap-checked writes on Postgres.
const activeCapLockKey = 7340312

const txRetryMaxElapsed = 10 * time.Second

// Repo is the SQL store behind the lifecycle engine. Every write runs in
// its own transaction and appends an audit event before committing.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
	Events  events.Writer
	Now     func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect) Repo {
	return Repo{
		DB:      conn,
		Dialect: dialect,
		Events:  events.Writer{Dialect: dialect, Now: time.Now},
		Now:     time.Now,
	}
}

// WithClock returns a copy of r whose timestamps come from now.
func (r Repo) WithClock(now func() time.Time) Repo {
	r.Now = now
	r.Events.Now = now
	return r
}

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return r.Now().UTC().Format(time.RFC3339)
}

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

// withTx runs fn in a transaction, retrying the whole unit on lock
// contention. Any other error aborts immediately.
func (r Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = txRetryMaxElapsed
	return backoff.Retry(func() error {
		err := r.runTx(ctx, fn)
		if err != nil && isRetryable(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (r Repo) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockActiveCap makes concurrent cap-checked writers queue behind each
// other. SQLite transactions already begin IMMEDIATE, so only Postgres
// needs an explicit lock.
func (r Repo) lockActiveCap(ctx context.Context, tx *sql.Tx) error {
	if r.Dialect != db.Postgres {
		return nil
	}
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, activeCapLockKey)
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "driver: bad connection")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
