package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresRepository_RotateWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	exp := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("delete from refresh_tokens where user_id=\\$1 and token_hash=\\$2").
		WithArgs("u1", "old").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("new", "u1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	r := NewPostgresRepository(db)
	ok, err := r.Rotate(context.Background(), "u1", "old", "new", exp)
	if err != nil || !ok {
		t.Fatalf("Rotate = %v, %v; want true", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_RotateLoses(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("delete from refresh_tokens").
		WithArgs("u1", "old").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	r := NewPostgresRepository(db)
	ok, err := r.Rotate(context.Background(), "u1", "old", "new", time.Now().Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("Rotate = %v, %v; want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_RotateInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("delete from refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	r := NewPostgresRepository(db)
	if ok, err := r.Rotate(context.Background(), "u1", "old", "new", time.Now()); err == nil || ok {
		t.Fatalf("Rotate = %v, %v; want error", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_ContainsRemoveClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	r := NewPostgresRepository(db)

	mock.ExpectQuery("select exists").WithArgs("u1", "h").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	if ok, err := r.Contains(ctx, "u1", "h"); err != nil || !ok {
		t.Errorf("Contains = %v, %v; want true", ok, err)
	}

	mock.ExpectExec("delete from refresh_tokens where user_id=\\$1 and token_hash=\\$2").
		WithArgs("u1", "h").WillReturnResult(sqlmock.NewResult(0, 1))
	if ok, err := r.Remove(ctx, "u1", "h"); err != nil || !ok {
		t.Errorf("Remove = %v, %v; want true", ok, err)
	}

	mock.ExpectExec("delete from refresh_tokens where user_id=\\$1$").
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	if n, err := r.Clear(ctx, "u1"); err != nil || n != 3 {
		t.Errorf("Clear = %d, %v; want 3", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
