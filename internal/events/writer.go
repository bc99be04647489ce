package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/and27/pcengine/internal/db"
)

const (
	ProjectCreated   = "project.created"
	ProjectUpdated   = "project.updated"
	ProjectLaunched  = "project.launched"
	ProjectFrozen    = "project.frozen"
	ProjectArchived  = "project.archived"
	ProjectFinished  = "project.finished"
	ProjectRestarted = "project.restarted"
	ProjectDeleted   = "project.deleted"
	ProjectReviewed  = "project.reviewed"
	ProjectOverride  = "project.override"
	DraftsImported   = "drafts.imported"
	DraftConverted   = "draft.converted"
	GitHubConnected  = "github.connected"
)

const (
	KindProject    = "project"
	KindDraft      = "draft"
	KindConnection = "connection"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
