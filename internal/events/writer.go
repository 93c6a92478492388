package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"teamportal/internal/domain"
)

// Writer appends audit rows next to the mutation they describe.
type Writer struct {
	DB  *sqlx.DB
	Now func() time.Time
}

type EventPayload map[string]any

const (
	TypeStatusRollup     = "task.status_rollup"
	TypePriorityEscalate = "task.priority_escalated"
	TypeBulkOperation    = "task.bulk_operation"
	TypeNotifyOverdue    = "notifications.overdue"
)

// Append records an event using tx so it commits or rolls back with the change.
func (w Writer) Append(ctx context.Context, tx *sqlx.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
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
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

// Tail returns the most recent events, newest first.
func (w Writer) Tail(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []struct {
		ID          int64   `db:"id"`
		TS          string  `db:"ts"`
		Type        string  `db:"type"`
		EntityKind  string  `db:"entity_kind"`
		EntityID    *string `db:"entity_id"`
		ActorID     string  `db:"actor_id"`
		PayloadJSON string  `db:"payload_json"`
	}
	if err := w.DB.SelectContext(ctx, &rows, w.DB.Rebind(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events ORDER BY id DESC LIMIT ?`), limit); err != nil {
		return nil, fmt.Errorf("tail events: %w", err)
	}
	res := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		e := domain.Event{
			ID:          row.ID,
			TS:          row.TS,
			Type:        row.Type,
			EntityKind:  row.EntityKind,
			ActorID:     row.ActorID,
			PayloadJSON: row.PayloadJSON,
		}
		if row.EntityID != nil {
			e.EntityID = *row.EntityID
		}
		res = append(res, e)
	}
	return res, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
