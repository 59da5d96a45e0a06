// Package journal records watch transitions in Postgres.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
	"github.com/wykoj/livewatch/go/internal/dbconfig"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/sqlutil"
	"github.com/wykoj/livewatch/go/internal/watch"
)

const schema = `
CREATE TABLE IF NOT EXISTS watch_events (
	id          UUID PRIMARY KEY,
	watch_kind  TEXT NOT NULL,
	watch_id    TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	status      TEXT,
	target      TIMESTAMPTZ,
	reason      TEXT,
	state       JSONB,
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE watch_events ADD COLUMN IF NOT EXISTS state JSONB;
CREATE INDEX IF NOT EXISTS watch_events_watch_idx
	ON watch_events (watch_kind, watch_id, occurred_at DESC);
`

const insertEvent = `
INSERT INTO watch_events (id, watch_kind, watch_id, event_type, status, target, reason, state, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

const selectRecent = `
SELECT id, event_type, status, target, reason, state, occurred_at
FROM watch_events
WHERE watch_kind = $1 AND watch_id = $2
ORDER BY occurred_at DESC
LIMIT $3`

// Entry is one recorded transition.
type Entry struct {
	ID         uuid.UUID        `json:"id"`
	Watch      watch.Key        `json:"watch"`
	Type       watch.EventType  `json:"type"`
	Status     reconcile.Status `json:"status,omitempty"`
	Target     time.Time        `json:"target,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	State      *reconcile.State `json:"state,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Journal is a watch.Notifier that persists every non-countdown event.
type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Open connects to Postgres and makes sure the table exists.
func Open(ctx context.Context, cfg dbconfig.Config) (*Journal, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := New(db)
	if err := j.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("watch journal connected")
	return j, nil
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	err := sqlutil.Run(ctx, j.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create watch_events: %w", err)
	}
	return nil
}

// Notify implements watch.Notifier.
func (j *Journal) Notify(ctx context.Context, ev watch.Event) error {
	if ev.Type == watch.EventTypeCountdown {
		return nil
	}

	e := entryFromEvent(ev)
	state, err := stateJSON(e.State)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", e.Watch, err)
	}
	_, err = j.db.ExecContext(ctx, insertEvent,
		e.ID,
		string(e.Watch.Kind),
		e.Watch.ID,
		string(e.Type),
		sqlutil.ToSqlString(string(e.Status)),
		sqlutil.ToSqlTime(e.Target),
		sqlutil.ToSqlString(e.Reason),
		state,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", e.Type, e.Watch, err)
	}
	return nil
}

// Recent returns the latest transitions of one watch, newest first.
func (j *Journal) Recent(ctx context.Context, key watch.Key, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectRecent, string(key.Kind), key.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch_events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			typ    string
			status sql.NullString
			target sql.NullTime
			reason sql.NullString
			state  pqtype.NullRawMessage
		)
		if err := rows.Scan(&e.ID, &typ, &status, &target, &reason, &state, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch event: %w", err)
		}
		e.Watch = key
		e.Type = watch.EventType(typ)
		e.Status = reconcile.Status(sqlutil.FromSqlString(status))
		e.Target = sqlutil.FromSqlTime(target)
		e.Reason = sqlutil.FromSqlString(reason)
		if state.Valid {
			var st reconcile.State
			if err := json.Unmarshal(state.RawMessage, &st); err != nil {
				return nil, fmt.Errorf("failed to decode state of event %s: %w", e.ID, err)
			}
			e.State = &st
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func entryFromEvent(ev watch.Event) Entry {
	e := Entry{
		ID:         ev.ID,
		Watch:      ev.Watch,
		Type:       ev.Type,
		Reason:     ev.Reason,
		OccurredAt: ev.At,
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if ev.State != nil {
		st := *ev.State
		e.State = &st
		e.Status = st.Status
		e.Target = st.Target
	}
	return e
}

// stateJSON encodes the full state snapshot; events without one store NULL.
func stateJSON(st *reconcile.State) (pqtype.NullRawMessage, error) {
	if st == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: len(raw) > 0}, nil
}
