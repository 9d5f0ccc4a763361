package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/medsync/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var (
	insertQuery = regexp.QuoteMeta(`INSERT INTO records`) + `.*` + regexp.QuoteMeta(`ON CONFLICT (collection, idempotency_key) DO NOTHING`)
	selectByID  = regexp.QuoteMeta(`FROM records WHERE collection = $1 AND id = $2`)
	selectByKey = regexp.QuoteMeta(`FROM records WHERE collection = $1 AND idempotency_key = $2`)
	mergeQuery  = regexp.QuoteMeta(`UPDATE records SET data = data || $3::jsonb`) + `.*RETURNING`
	deleteQuery = regexp.QuoteMeta(`DELETE FROM records WHERE collection = $1 AND id = $2`)
	listQuery   = regexp.QuoteMeta(`FROM records WHERE collection = $1 ORDER BY created_at, id`)
	columns     = []string{"id", "idempotency_key", "data", "created_at", "updated_at"}
)

func TestInsert(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "stored", affected: 1, want: true},
		{name: "key already used", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(insertQuery).
				WithArgs("patients", "p1", "k1", `{"name":"Jane"}`, t0, t0).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.Insert(context.Background(), rec("p1", "k1", t0, map[string]any{"name": "Jane"}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("inserted = %v, want %v", ok, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db is down"))

	_, err := repo.Insert(context.Background(), rec("p1", "", t0, nil))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByID).
		WithArgs("patients", "p1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("p1", "k1", []byte(`{"name":"Jane"}`), t0, t0.Add(time.Minute)))

	got, err := repo.Get(context.Background(), "patients", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "p1" || got.Collection != "patients" || got.IdempotencyKey != "k1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Fields["name"] != "Jane" {
		t.Fatalf("unexpected fields: %v", got.Fields)
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected updated_at: %v", got.UpdatedAt)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByID).
		WithArgs("patients", "nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "patients", "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGet_NullKeyAndBadJSON(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("p1", nil, []byte(`{}`), t0, t0))
	got, err := repo.Get(context.Background(), "patients", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IdempotencyKey != "" || got.Fields == nil {
		t.Fatalf("unexpected record: %+v", got)
	}

	mock.ExpectQuery(selectByID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("p1", nil, []byte(`not json`), t0, t0))
	if _, err := repo.Get(context.Background(), "patients", "p1"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByKey).
		WithArgs("patients", "k1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("p1", "k1", []byte(`{}`), t0, t0))

	got, err := repo.FindByIdempotencyKey(context.Background(), "patients", "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "p1" {
		t.Fatalf("unexpected id %q", got.ID)
	}
}

func TestMerge(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := t0.Add(time.Hour)
	mock.ExpectQuery(mergeQuery).
		WithArgs("patients", "p1", `{"status":"critical"}`, now).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("p1", nil, []byte(`{"name":"Jane","status":"critical"}`), t0, now))

	got, err := repo.Merge(context.Background(), "patients", "p1", map[string]any{"status": "critical"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Fields["status"] != "critical" || got.Fields["name"] != "Jane" {
		t.Fatalf("unexpected fields: %v", got.Fields)
	}

	mock.ExpectQuery(mergeQuery).WillReturnError(sql.ErrNoRows)
	_, err = repo.Merge(context.Background(), "patients", "nope", map[string]any{}, now)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQuery).
		WithArgs("patients", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), "patients", "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(deleteQuery).
		WithArgs("patients", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Delete(context.Background(), "patients", "p1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	mock.ExpectExec(deleteQuery).WillReturnError(errors.New("db is down"))
	if err := repo.Delete(context.Background(), "patients", "p1"); err == nil || errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want db error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(listQuery).
		WithArgs("patients").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("p1", nil, []byte(`{"name":"A"}`), t0, t0).
			AddRow("p2", "k2", []byte(`{"name":"B"}`), t0.Add(time.Second), t0))

	list, err := repo.List(context.Background(), "patients")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "p1" || list[1].ID != "p2" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestList_Errors(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(listQuery).WillReturnError(errors.New("db is down"))
	if _, err := repo.List(context.Background(), "patients"); err == nil {
		t.Fatal("expected query error")
	}

	mock.ExpectQuery(listQuery).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("p1", nil, []byte(`{}`), t0, t0).
			RowError(0, errors.New("row broken")))
	if _, err := repo.List(context.Background(), "patients"); err == nil {
		t.Fatal("expected row error")
	}
}
