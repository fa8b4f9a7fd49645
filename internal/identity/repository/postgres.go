package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"accessguard/internal/identity/domain"
	"accessguard/internal/platform/rbac"
)

const uniqueViolation = "23505"

const identityColumns = `id, email, password_hash, first_name, last_name, role, status, failed_logins,
	locked_until, password_changed_at, password_expires_at, password_history, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id=$1`, id)
	return scanIdentity(row)
}

// GetByEmail returns the identity for email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where lower(email)=$1`,
		domain.NormalizeEmail(email))
	return scanIdentity(row)
}

// Create inserts i. A unique violation on email becomes ErrDuplicateEmail.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	history, err := json.Marshal(nonNil(i.PasswordHistory))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`insert into identities(`+identityColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		i.ID, domain.NormalizeEmail(i.Email), i.PasswordHash, i.FirstName, i.LastName, string(i.Role), string(i.Status),
		i.FailedLogins, nullTime(i.LockedUntil), i.PasswordChangedAt.UTC(), nullTime(i.PasswordExpiresAt), history,
		nullTime(i.LastLoginAt), i.CreatedAt.UTC(), i.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

// Update writes the profile, role, status and password fields of i. failed_logins and
// locked_until are owned by RecordFailedLogin and ResetFailedLogins and are left untouched.
func (r *PostgresRepository) Update(ctx context.Context, i *domain.Identity) error {
	history, err := json.Marshal(nonNil(i.PasswordHistory))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`update identities set password_hash=$2, first_name=$3, last_name=$4, role=$5, status=$6,
		 password_changed_at=$7, password_expires_at=$8, password_history=$9, last_login_at=$10,
		 updated_at=$11 where id=$1`,
		i.ID, i.PasswordHash, i.FirstName, i.LastName, string(i.Role), string(i.Status),
		i.PasswordChangedAt.UTC(), nullTime(i.PasswordExpiresAt),
		history, nullTime(i.LastLoginAt), i.UpdatedAt.UTC(),
	)
	return err
}

// RecordFailedLogin increments failed_logins in a single statement so concurrent failures
// across instances are never lost.
func (r *PostgresRepository) RecordFailedLogin(ctx context.Context, id string, maxFailures int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		count  int
		locked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`update identities set failed_logins = failed_logins + 1,
		 locked_until = case when failed_logins + 1 >= $2 then $3 else locked_until end,
		 updated_at = now()
		 where id=$1 returning failed_logins, locked_until`,
		id, maxFailures, lockUntil.UTC(),
	).Scan(&count, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return count, timePtr(locked), nil
}

func (r *PostgresRepository) ResetFailedLogins(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update identities set failed_logins=0, locked_until=null, last_login_at=$2, updated_at=$2 where id=$1`,
		id, at.UTC())
	return err
}

func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `select status, count(*) from identities group by status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

func scanIdentity(row *sql.Row) (*domain.Identity, error) {
	var (
		i                                   domain.Identity
		role, status                        string
		lockedUntil, expiresAt, lastLoginAt sql.NullTime
		history                             []byte
	)
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.FirstName, &i.LastName, &role, &status, &i.FailedLogins,
		&lockedUntil, &i.PasswordChangedAt, &expiresAt, &history, &lastLoginAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.Role = rbac.Role(role)
	i.Status = domain.Status(status)
	i.LockedUntil = timePtr(lockedUntil)
	i.PasswordExpiresAt = timePtr(expiresAt)
	i.LastLoginAt = timePtr(lastLoginAt)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &i.PasswordHistory); err != nil {
			return nil, err
		}
	}
	return &i, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
