package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"accessguard/internal/identity/domain"
	"accessguard/internal/platform/rbac"
)

var identityCols = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "status",
	"failed_logins", "locked_until", "password_changed_at", "password_expires_at", "password_history",
	"last_login_at", "created_at", "updated_at"}

func TestPostgresRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	now := time.Now().UTC()
	locked := now.Add(time.Hour)

	mock.ExpectQuery("select .+ from identities where lower\\(email\\)=\\$1").
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows(identityCols).AddRow(
			"id-1", "a@example.com", "hash", "Ann", "Lee", "manager", "active",
			3, locked, now, nil, []byte(`["h1","h2"]`), nil, now, now))

	r := NewPostgresRepository(db)
	got, err := r.GetByEmail(context.Background(), " A@Example.com")
	if err != nil || got == nil {
		t.Fatalf("GetByEmail = %v, %v", got, err)
	}
	if got.Role != "manager" || got.Status != domain.StatusActive || got.FailedLogins != 3 {
		t.Errorf("got %+v", got)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(locked) {
		t.Errorf("LockedUntil = %v, want %v", got.LockedUntil, locked)
	}
	if len(got.PasswordHistory) != 2 || got.PasswordHistory[0] != "h1" {
		t.Errorf("PasswordHistory = %v", got.PasswordHistory)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_GetByIDMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery("select .+ from identities where id=\\$1").
		WithArgs("nope").WillReturnRows(sqlmock.NewRows(identityCols))

	got, err := NewPostgresRepository(db).GetByID(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("GetByID = %v, %v; want nil, nil", got, err)
	}
}

func TestPostgresRepository_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("insert into identities").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_lower_idx"})

	err = NewPostgresRepository(db).Create(context.Background(), newIdentity("id-1", "a@example.com"))
	if err != ErrDuplicateEmail {
		t.Errorf("Create err = %v, want ErrDuplicateEmail", err)
	}
}

func TestPostgresRepository_UpdateLeavesLockout(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	i := newIdentity("id-1", "a@example.com")
	i.FailedLogins = 0
	i.LockedUntil = nil

	mock.ExpectExec(`update identities set password_hash=\$2, first_name=\$3, last_name=\$4, role=\$5, status=\$6,\s+password_changed_at=\$7`).
		WithArgs("id-1", "h", "", "", string(rbac.RoleEmployee), string(domain.StatusActive),
			i.PasswordChangedAt, nil, []byte("[]"), nil, i.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPostgresRepository(db).Update(context.Background(), i); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_RecordFailedLogin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	until := time.Now().Add(30 * time.Minute).UTC()

	mock.ExpectQuery("update identities set failed_logins = failed_logins \\+ 1").
		WithArgs("id-1", 5, until).
		WillReturnRows(sqlmock.NewRows([]string{"failed_logins", "locked_until"}).AddRow(5, until))

	n, locked, err := NewPostgresRepository(db).RecordFailedLogin(context.Background(), "id-1", 5, until)
	if err != nil {
		t.Fatalf("RecordFailedLogin: %v", err)
	}
	if n != 5 || locked == nil || !locked.Equal(until) {
		t.Errorf("RecordFailedLogin = %d, %v; want 5, %v", n, locked, until)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_ResetFailedLogins(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	at := time.Now().UTC()
	mock.ExpectExec("update identities set failed_logins=0, locked_until=null").
		WithArgs("id-1", at).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPostgresRepository(db).ResetFailedLogins(context.Background(), "id-1", at); err != nil {
		t.Fatalf("ResetFailedLogins: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
