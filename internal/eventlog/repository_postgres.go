package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	createEventsTableQuery = `
		CREATE TABLE IF NOT EXISTS order_events (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			type TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT,
			actor TEXT,
			actor_name TEXT,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)
	`
	createEventsIndexQuery = `CREATE INDEX IF NOT EXISTS order_events_order_id_idx ON order_events (order_id, created_at DESC)`
	insertEventQuery       = `
		INSERT INTO order_events (id, order_id, type, from_status, to_status, actor, actor_name, meta, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	listEventsQuery = `
		SELECT id, order_id, type, from_status, to_status, actor, actor_name, meta, created_at
		FROM order_events
		WHERE ($1 = '' OR order_id = $1)
		  AND (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
		ORDER BY created_at DESC
		LIMIT $3
	`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the order_events table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createEventsTableQuery); err != nil {
		return fmt.Errorf("create order_events: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createEventsIndexQuery); err != nil {
		return fmt.Errorf("index order_events: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, e Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	if e.Meta == nil {
		meta = []byte(`{}`)
	}
	_, err = r.db.ExecContext(ctx, insertEventQuery,
		e.ID, e.OrderID, string(e.Type), e.From, e.To, e.Actor, e.ActorName, meta, e.Timestamp)
	return err
}

func (r *PostgresRepository) List(ctx context.Context, q Query) ([]Event, error) {
	types := make([]string, 0, len(q.Types))
	for _, t := range q.Types {
		types = append(types, string(t))
	}

	rows, err := r.db.QueryContext(ctx, listEventsQuery, q.OrderID, pq.Array(types), q.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e                          Event
			typ                        string
			from, to, actor, actorName sql.NullString
			meta                       []byte
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &typ, &from, &to, &actor, &actorName, &meta, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = Type(typ)
		e.From, e.To, e.Actor, e.ActorName = from.String, to.String, actor.String, actorName.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode meta of event %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
