package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db, Postgres), mock
}

func TestMarkDigestedOnlyTouchesUnmarkedRows(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE items SET digested_on = $1 WHERE id IN ($2,$3) AND digested_on IS NULL")).
		WithArgs("2025-03-10", int64(4), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.MarkDigested(context.Background(), []int64{4, 9}, "2025-03-10"); err != nil {
		t.Fatalf("MarkDigested: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkDigestedWithoutIDsIsNoop(t *testing.T) {
	repo, mock := newMockRepository(t)

	if err := repo.MarkDigested(context.Background(), nil, "2025-03-10"); err != nil {
		t.Fatalf("MarkDigested: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertItemsIgnoresConflicts(t *testing.T) {
	repo, mock := newMockRepository(t)

	fetched := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	src := domain.Source{ID: "openai", Name: "OpenAI", Language: "en"}
	items := []domain.StoredItem{
		domain.NewStoredItem(src, domain.CandidateItem{Title: "Model update notes", URL: "https://openai.com/index/a"}, fetched),
		domain.NewStoredItem(src, domain.CandidateItem{Title: "Platform changelog", URL: "https://openai.com/index/b"}, fetched),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO items \(source_id,source_name,language,fingerprint,.*\) VALUES \(\$1,.*\$24\) ON CONFLICT \(fingerprint\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.InsertItems(context.Background(), items)
	if err != nil {
		t.Fatalf("InsertItems: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted row, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertItemsRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)

	src := domain.Source{ID: "openai", Name: "OpenAI"}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO items").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.InsertItems(context.Background(), []domain.StoredItem{
		domain.NewStoredItem(src, domain.CandidateItem{Title: "Model update notes", URL: "https://openai.com/index/a"}, time.Now()),
	})
	if err == nil {
		t.Fatal("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUndigestedItemsQueryShape(t *testing.T) {
	repo, mock := newMockRepository(t)

	from := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	high := domain.ImportanceHigh

	mock.ExpectQuery(regexp.QuoteMeta("FROM items WHERE digested_on IS NULL AND fetched_at >= $1 AND fetched_at < $2 AND importance = $3 ORDER BY source_name, fetched_at DESC, id")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "high").
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow(int64(7), "openai", "OpenAI", "en", "fp", "Model update notes", "https://openai.com/index/a",
				nil, "", "", "high", nil, from.Add(time.Hour)))

	items, err := repo.UndigestedItems(context.Background(), ports.ItemFilter{From: from, To: to, Importance: &high})
	if err != nil {
		t.Fatalf("UndigestedItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != 7 || !items[0].IsHighImportance() || items[0].PublishedAt != nil {
		t.Fatalf("unexpected items %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDigestByDateNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT date, text, short_text")).
		WithArgs("2025-03-10").
		WillReturnRows(sqlmock.NewRows(digestColumns))

	if _, err := repo.DigestByDate(context.Background(), "2025-03-10"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
