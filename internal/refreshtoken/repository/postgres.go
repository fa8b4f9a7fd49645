package repository

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepository stores refresh-token hashes in the refresh_tokens table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh-token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Add(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`insert into refresh_tokens(token_hash, user_id, expires_at) values($1,$2,$3)
		 on conflict (token_hash) do update set user_id = excluded.user_id, expires_at = excluded.expires_at`,
		hash, userID, expiresAt.UTC())
	return err
}

// Rotate deletes the old row and inserts the new one in one transaction. Row locking on
// the delete means a concurrent rotation of the same hash sees zero affected rows.
func (r *PostgresRepository) Rotate(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`delete from refresh_tokens where user_id=$1 and token_hash=$2 and expires_at > now()`,
		userID, oldHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(token_hash, user_id, expires_at) values($1,$2,$3)`,
		newHash, userID, expiresAt.UTC()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepository) Remove(ctx context.Context, userID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`delete from refresh_tokens where user_id=$1 and token_hash=$2`, userID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from refresh_tokens where user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) Contains(ctx context.Context, userID, hash string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`select exists(select 1 from refresh_tokens where user_id=$1 and token_hash=$2 and expires_at > now())`,
		userID, hash).Scan(&ok)
	return ok, err
}

// PurgeExpired deletes rows whose expiry has passed and returns how many were removed.
func (r *PostgresRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from refresh_tokens where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
