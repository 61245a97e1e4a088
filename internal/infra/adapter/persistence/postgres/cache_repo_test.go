package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── 1. Cache ──────────────────────────────── */

func TestCacheRepo_GetHit(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM caches`)).
		WithArgs("https://api.example/q", "search", "federal_bills").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow(`{"results":[]}`))

	content, found, err := postgres.NewCacheRepo(db).Get(context.Background(), "https://api.example/q", "search", "federal_bills")
	if err != nil || !found || content != `{"results":[]}` {
		t.Fatalf("Get = %q, %v, %v", content, found, err)
	}
}

func TestCacheRepo_GetMiss(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM caches`).WillReturnError(sql.ErrNoRows)

	_, found, err := postgres.NewCacheRepo(db).Get(context.Background(), "u", "search", "regulations")
	if err != nil || found {
		t.Fatalf("Get found=%v err=%v; want miss", found, err)
	}
}

func TestCacheRepo_PutUpserts(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (url, function, subscription_type)`)).
		WithArgs("u", "search", "regulations", "body", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := postgres.NewCacheRepo(db).Put(context.Background(), "u", "search", "regulations", "body"); err != nil {
		t.Fatalf("Put err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCacheRepo_Clear(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM caches WHERE subscription_type = $1`)).
		WithArgs("regulations").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := postgres.NewCacheRepo(db).Clear(context.Background(), "regulations")
	if err != nil || n != 3 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
}

/* ──────────────────────────────── 2. Reports / Events ──────────────────────────────── */

func TestReportRepo_CreateReport(t *testing.T) {
	db, mock := newMock(t)

	r := entity.NewWarningReport("Check", "2 backfills", map[string]any{"count": 2})
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO reports`)).
		WithArgs("WARNING", "Check", "2 backfills", []byte(`{"count":2}`), r.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	if err := postgres.NewReportRepo(db).CreateReport(context.Background(), r); err != nil || r.ID != 1 {
		t.Fatalf("CreateReport err=%v id=%d", err, r.ID)
	}
}

func TestReportRepo_ListEvents(t *testing.T) {
	db, mock := newMock(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM events`)).
		WithArgs("backfills", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "subscription_type", "interest_in", "data", "created_at"}).
			AddRow(int64(1), "backfills", "federal_bills", "water", []byte(`{"item_id":"hr1"}`), now))

	got, err := postgres.NewReportRepo(db).ListEvents(context.Background(), "backfills", 0)
	if err != nil || len(got) != 1 || got[0].Data["item_id"] != "hr1" {
		t.Fatalf("ListEvents err=%v got=%v", err, got)
	}
}
