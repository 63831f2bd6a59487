package documents_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/reconify/internal/documents"
	"github.com/JaimeStill/reconify/pkg/pagination"
	"github.com/JaimeStill/reconify/pkg/routes"
)

const selectHistory = "SELECT h.id, h.doc_id, h.category, h.entity, h.filename, h.content_hash, " +
	"h.size_bytes, h.total_records, h.backup_count, h.status, h.error, h.submitted_by, h.recorded_at, " +
	"h.ingested, h.submitted_at " +
	"FROM public.upload_history h"

const insertHistory = "INSERT INTO upload_history(doc_id, category, entity, filename, content_hash, " +
	"size_bytes, total_records, backup_count, status, error, submitted_by, recorded_at, ingested, submitted_at) " +
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id"

var historyCols = []string{
	"id", "doc_id", "category", "entity", "filename", "content_hash", "size_bytes",
	"total_records", "backup_count", "status", "error", "submitted_by", "recorded_at",
	"ingested", "submitted_at",
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSystem(t *testing.T) (documents.System, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	cfg := pagination.Config{DefaultPageSize: 25, MaxPageSize: 200}
	return documents.New(db, discard(), cfg), mock
}

func historyRow(rows *sqlmock.Rows, id int64, doc uuid.UUID, entity, status string, ts time.Time) *sqlmock.Rows {
	return rows.AddRow(id, doc.String(), "sot", entity, "feed.csv", "abc", int64(10), 3, 0, status, "", "ops", ts,
		status == "processed", ts.Add(-time.Minute))
}

func TestParseCategory(t *testing.T) {
	c, err := documents.ParseCategory("panel")
	require.NoError(t, err)
	require.Equal(t, documents.CategoryPanel, c)

	_, err = documents.ParseCategory("misc")
	require.ErrorIs(t, err, documents.ErrInvalidFile)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, documents.StatusProcessed.Terminal())
	require.True(t, documents.StatusFailed.Terminal())
	require.False(t, documents.StatusProcessing.Terminal())
}

func TestContentHash(t *testing.T) {
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		documents.ContentHash(nil))
}

func TestRecord(t *testing.T) {
	sys, mock := newSystem(t)
	doc := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(insertHistory).
		WithArgs(doc.String(), "sot", "hr_data", "feed.csv", "abc", int64(10), int64(80), int64(100), "processed", "", "ops", ts, true, ts.Add(-time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	got, err := sys.Record(context.Background(), documents.HistoryEntry{
		DocID:        doc,
		Category:     documents.CategorySOT,
		Entity:       "hr_data",
		Filename:     "feed.csv",
		ContentHash:  "abc",
		SizeBytes:    10,
		TotalRecords: 80,
		BackupCount:  100,
		Status:       documents.StatusProcessed,
		Ingested:     true,
		SubmittedBy:  "ops",
		SubmittedAt:  ts.Add(-time.Minute),
		Timestamp:    ts,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), got.ID)
}

func TestRecordDuplicateDocID(t *testing.T) {
	sys, mock := newSystem(t)

	mock.ExpectBegin()
	mock.ExpectQuery(insertHistory).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := sys.Record(context.Background(), documents.HistoryEntry{DocID: uuid.New()})
	require.ErrorIs(t, err, documents.ErrDuplicate)
}

func TestHistory(t *testing.T) {
	sys, mock := newSystem(t)
	d1, d2 := uuid.New(), uuid.New()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	rows := sqlmock.NewRows(historyCols)
	historyRow(rows, 2, d2, "hr_data", "processed", t2)
	historyRow(rows, 1, d1, "hr_data", "processed", t1)

	mock.ExpectQuery(selectHistory + " WHERE h.entity = $1 ORDER BY h.recorded_at DESC, h.id DESC").
		WithArgs("hr_data").
		WillReturnRows(rows)

	entries, err := sys.History(context.Background(), "hr_data")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, d2, entries[0].DocID)
	require.Equal(t, documents.CategorySOT, entries[0].Category)
	require.Equal(t, documents.StatusProcessed, entries[0].Status)
}

func TestFindByHash(t *testing.T) {
	sys, mock := newSystem(t)
	doc := uuid.New()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q := selectHistory + " WHERE h.category = $1 AND h.content_hash = $2 AND h.status = $3" +
		" ORDER BY h.recorded_at DESC, h.id DESC LIMIT 1"

	mock.ExpectQuery(q).
		WithArgs("sot", "abc", "processed").
		WillReturnRows(historyRow(sqlmock.NewRows(historyCols), 1, doc, "hr_data", "processed", ts))

	e, err := sys.FindByHash(context.Background(), documents.CategorySOT, "abc")
	require.NoError(t, err)
	require.Equal(t, doc, e.DocID)

	mock.ExpectQuery(q).
		WithArgs("sot", "def", "processed").
		WillReturnError(sql.ErrNoRows)

	_, err = sys.FindByHash(context.Background(), documents.CategorySOT, "def")
	require.ErrorIs(t, err, documents.ErrNotFound)
}

func TestList(t *testing.T) {
	sys, mock := newSystem(t)
	doc := uuid.New()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	where := " WHERE h.category = $1 AND h.entity = $2"
	mock.ExpectQuery("SELECT COUNT(*) FROM public.upload_history h"+where).
		WithArgs("sot", "hr_data").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(selectHistory+where+" ORDER BY h.recorded_at DESC, h.id DESC LIMIT 10 OFFSET 10").
		WithArgs("sot", "hr_data").
		WillReturnRows(historyRow(sqlmock.NewRows(historyCols), 1, doc, "hr_data", "failed", ts))

	values := url.Values{"category": {"sot"}, "entity": {"hr_data"}}
	res, err := sys.List(context.Background(),
		pagination.PageRequest{Page: 2, PageSize: 10},
		documents.FiltersFromQuery(values))
	require.NoError(t, err)
	require.Equal(t, 11, res.Total)
	require.Equal(t, 2, res.TotalPages)
	require.False(t, res.HasNext)
	require.Len(t, res.Data, 1)
}

func TestHandlerList(t *testing.T) {
	sys, mock := newSystem(t)

	mock.ExpectQuery("SELECT COUNT(*) FROM public.upload_history h WHERE h.status = $1").
		WithArgs("failed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(selectHistory + " WHERE h.status = $1 ORDER BY h.entity ASC LIMIT 25 OFFSET 0").
		WithArgs("failed").
		WillReturnRows(sqlmock.NewRows(historyCols))

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	req := httptest.NewRequest(http.MethodGet, "/uploads/history?status=failed&sort=entity,bogus", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body pagination.PageResult[documents.HistoryEntry]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 0, body.Total)
	require.Empty(t, body.Data)
}

func TestHandlerFindBadID(t *testing.T) {
	sys, _ := newSystem(t)

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/history/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusConflict, documents.MapHTTPStatus(documents.ErrDuplicate))
	require.Equal(t, http.StatusNotFound, documents.MapHTTPStatus(documents.ErrNotFound))
	require.Equal(t, http.StatusRequestEntityTooLarge, documents.MapHTTPStatus(documents.ErrFileTooLarge))
	require.Equal(t, http.StatusInternalServerError, documents.MapHTTPStatus(io.EOF))
}
