package repository

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"smart_cash_power/internal/models"
)

func newUserRepoMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewUserRepository(db), mock
}

func TestUserRepository_CreateStoresRole(t *testing.T) {
	cases := []struct {
		name     string
		role     string
		wantRole string
	}{
		{"user", models.RoleUser, models.RoleUser},
		{"admin", models.RoleAdmin, models.RoleAdmin},
		{"empty defaults to user", "", models.RoleUser},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newUserRepoMock(t)
			mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
				WithArgs("operator", "bcrypt-hash", tc.wantRole).
				WillReturnResult(sqlmock.NewResult(int64(10+i), 1))

			id, err := repo.Create("operator", "bcrypt-hash", tc.role)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != 10+i {
				t.Fatalf("id=%d, want %d", id, 10+i)
			}
		})
	}
}

func TestUserRepository_CreateErrors(t *testing.T) {
	t.Run("exec", func(t *testing.T) {
		repo, mock := newUserRepoMock(t)
		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("operator", "h", models.RoleAdmin).
			WillReturnError(errors.New("UNIQUE constraint failed: users.username"))

		id, err := repo.Create("operator", "h", models.RoleAdmin)
		if err == nil || !strings.Contains(err.Error(), `insert user "operator"`) || id != 0 {
			t.Fatalf("expected wrapped insert error and id 0, got id=%d err=%v", id, err)
		}
	})
	t.Run("last insert id", func(t *testing.T) {
		repo, mock := newUserRepoMock(t)
		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("operator", "h", models.RoleUser).
			WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))

		if _, err := repo.Create("operator", "h", models.RoleUser); err == nil || !strings.Contains(err.Error(), "get last insert id") {
			t.Fatalf("expected last insert id error, got %v", err)
		}
	})
}

func TestUserRepository_GetByUsernameReturnsRole(t *testing.T) {
	repo, mock := newUserRepoMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("grid-admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "role"}).
			AddRow(7, "grid-admin", "h123", models.RoleAdmin))

	u, err := repo.GetByUsername("grid-admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.User{ID: 7, Username: "grid-admin", PasswordHash: "h123", Role: models.RoleAdmin}
	if u == nil || *u != want {
		t.Fatalf("got %+v, want %+v", u, want)
	}
}

func TestUserRepository_GetByUsernameMissingAndFailing(t *testing.T) {
	repo, mock := newUserRepoMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("operator").
		WillReturnError(errors.New("disk I/O error"))

	u, err := repo.GetByUsername("ghost")
	if u != nil || err != nil {
		t.Fatalf("missing user must be (nil, nil), got (%+v, %v)", u, err)
	}
	u, err = repo.GetByUsername("operator")
	if u != nil || err == nil || !strings.Contains(err.Error(), "select user") {
		t.Fatalf("expected wrapped select error, got (%+v, %v)", u, err)
	}
}
