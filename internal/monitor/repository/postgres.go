package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"accessguard/internal/monitor/domain"
)

const threatColumns = `id, threat_type, severity, source, description, metadata, created_at, resolved_at, resolved_by`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a threat repository over the security_threats table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts t; a second save of the same id is ignored.
func (r *PostgresRepository) Save(ctx context.Context, t *domain.Threat) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	var resolvedAt sql.NullTime
	if t.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: t.ResolvedAt.UTC(), Valid: true}
	}
	_, err = r.db.ExecContext(ctx,
		`insert into security_threats(`+threatColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do nothing`,
		t.ID, string(t.Type), string(t.Severity), t.Source, t.Description, meta, t.Timestamp.UTC(),
		resolvedAt, t.ResolvedBy,
	)
	return err
}

func (r *PostgresRepository) MarkResolved(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`update security_threats set resolved_at=$2, resolved_by=$3 where id=$1 and resolved_at is null`,
		id, at.UTC(), resolvedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepository) ListSince(ctx context.Context, since time.Time) ([]*domain.Threat, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+threatColumns+` from security_threats where created_at >= $1 order by created_at`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Threat
	for rows.Next() {
		var (
			t          domain.Threat
			typ, sev   string
			meta       []byte
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &typ, &sev, &t.Source, &t.Description, &meta, &t.Timestamp,
			&resolvedAt, &t.ResolvedBy); err != nil {
			return nil, err
		}
		t.Type = domain.ThreatType(typ)
		t.Severity = domain.Severity(sev)
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, err
			}
		}
		if resolvedAt.Valid {
			at := resolvedAt.Time
			t.ResolvedAt = &at
			t.Resolved = true
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from security_threats where resolved_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
