package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"accessguard/internal/audit/domain"
)

const eventColumns = `id, action, entity_type, entity_id, actor_id, actor_email, ip_address, user_agent,
	description, before_data, after_data, metadata, created_at, integrity_hash`

// defaultListLimit bounds list queries when the caller passes limit <= 0.
const defaultListLimit = 1000

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit event repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists e. The event must have ID and Timestamp set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	before, err := encodeJSON(e.Before)
	if err != nil {
		return err
	}
	after, err := encodeJSON(e.After)
	if err != nil {
		return err
	}
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`insert into audit_events(`+eventColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, string(e.Action), e.EntityType, e.EntityID, nullString(e.ActorID), e.ActorEmail, e.IPAddress,
		e.UserAgent, e.Description, before, after, meta, e.Timestamp.UTC(), e.IntegrityHash,
	)
	return err
}

// GetByID returns the event for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `select `+eventColumns+` from audit_events where id=$1`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanEvents(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	return r.list(ctx, `where entity_type=$1 and entity_id=$2`, limit, entityType, entityID)
}

func (r *PostgresRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*domain.Event, error) {
	return r.list(ctx, `where actor_id=$1`, limit, actorID)
}

func (r *PostgresRepository) ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]*domain.Event, error) {
	return r.list(ctx, `where created_at >= $1 and created_at < $2`, limit, from.UTC(), to.UTC())
}

// Counts runs one grouped query over the window and folds the rows into domain.Counts.
func (r *PostgresRepository) Counts(ctx context.Context, from, to time.Time) (domain.Counts, error) {
	c := domain.NewCounts()
	rows, err := r.db.QueryContext(ctx,
		`select action, entity_type, coalesce(actor_id, ''), to_char(created_at at time zone 'UTC', 'YYYY-MM-DD'), count(*)
		 from audit_events where created_at >= $1 and created_at < $2
		 group by 1, 2, 3, 4`,
		from.UTC(), to.UTC())
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			action, entityType, actor, day string
			n                              int
		)
		if err := rows.Scan(&action, &entityType, &actor, &day, &n); err != nil {
			return c, err
		}
		if actor == "" {
			actor = domain.SystemActor
		}
		c.Total += n
		c.ByAction[action] += n
		c.ByEntityType[entityType] += n
		c.ByActor[actor] += n
		c.ByDay[day] += n
	}
	return c, rows.Err()
}

func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from audit_events where created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) list(ctx context.Context, where string, limit int, args ...any) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	q := `select ` + eventColumns + ` from audit_events ` + where +
		` order by created_at desc limit $` + strconv.Itoa(len(args))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e                   domain.Event
			action              string
			actor               sql.NullString
			before, after, meta []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &actor, &e.ActorEmail, &e.IPAddress,
			&e.UserAgent, &e.Description, &before, &after, &meta, &e.Timestamp, &e.IntegrityHash); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		e.ActorID = actor.String
		var err error
		if e.Before, err = decodeJSON(before); err != nil {
			return nil, err
		}
		if e.After, err = decodeJSON(after); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeJSON(meta); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func encodeJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
