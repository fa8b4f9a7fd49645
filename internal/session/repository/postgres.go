package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accessguard/internal/session/domain"
)

const sessionColumns = `id, identity_id, refresh_token_hash, device_type, browser, os, user_agent, ip_address,
	created_at, last_activity, expires_at, revoked_at, revoke_reason`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`insert into sessions(`+sessionColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.IdentityID, s.RefreshTokenHash, string(s.Device.Type), s.Device.Browser, s.Device.OS,
		s.UserAgent, s.IPAddress, s.CreatedAt.UTC(), s.LastActivity.UTC(), s.ExpiresAt.UTC(),
		timeToNullTime(s.RevokedAt), s.RevokeReason,
	)
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.one(ctx, `select `+sessionColumns+` from sessions where id=$1`, id)
}

func (r *PostgresRepository) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	return r.one(ctx, `select `+sessionColumns+` from sessions where refresh_token_hash=$1 and revoked_at is null`, hash)
}

func (r *PostgresRepository) ListActiveByIdentity(ctx context.Context, identityID string, now time.Time) ([]*domain.Session, error) {
	return r.many(ctx, `select `+sessionColumns+` from sessions
		where identity_id=$1 and revoked_at is null and expires_at > $2`, identityID, now.UTC())
}

func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update sessions set last_activity=$2 where id=$1 and revoked_at is null`, id, at.UTC())
	return err
}

func (r *PostgresRepository) Rebind(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update sessions set refresh_token_hash=$2, expires_at=$3 where id=$1 and revoked_at is null`,
		id, hash, expiresAt.UTC())
	return err
}

// Revoke sets revoked_at only on an unrevoked row, so exactly one caller observes true.
func (r *PostgresRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`update sessions set revoked_at=$2, revoke_reason=$3 where id=$1 and revoked_at is null`,
		id, at.UTC(), reason)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	return r.many(ctx, `select `+sessionColumns+` from sessions where revoked_at is null and expires_at <= $1`, now.UTC())
}

func (r *PostgresRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where revoked_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) one(ctx context.Context, q string, args ...any) (*domain.Session, error) {
	list, err := r.many(ctx, q, args...)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *PostgresRepository) many(ctx context.Context, q string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		var (
			s          domain.Session
			deviceType string
			revokedAt  sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.IdentityID, &s.RefreshTokenHash, &deviceType, &s.Device.Browser, &s.Device.OS,
			&s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &revokedAt, &s.RevokeReason); err != nil {
			return nil, err
		}
		s.Device.Type = domain.DeviceType(deviceType)
		s.RevokedAt = nullTimeToPtr(revokedAt)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
