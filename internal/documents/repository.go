package documents

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/reconify/pkg/pagination"
	"github.com/JaimeStill/reconify/pkg/query"
	"github.com/JaimeStill/reconify/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New returns a System backed by the upload_history table.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Record(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = entry.Timestamp
	}
	entry.SubmittedAt = entry.SubmittedAt.UTC()

	q := `
		INSERT INTO upload_history(` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	args := []any{
		entry.DocID,
		entry.Category,
		entry.Entity,
		entry.Filename,
		entry.ContentHash,
		entry.SizeBytes,
		entry.TotalRecords,
		entry.BackupCount,
		entry.Status,
		entry.Error,
		entry.SubmittedBy,
		entry.Timestamp,
		entry.Ingested,
		entry.SubmittedAt,
	}

	id, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int64, error) {
		return repository.QueryOne(ctx, tx, q, args, func(s repository.Scanner) (int64, error) {
			var id int64
			err := s.Scan(&id)
			return id, err
		})
	})
	if err != nil {
		return HistoryEntry{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	entry.ID = id
	r.logger.Info("history recorded",
		"doc_id", entry.DocID,
		"entity", entry.Entity,
		"status", entry.Status,
	)
	return entry, nil
}

func (r *repo) History(ctx context.Context, entity string) ([]HistoryEntry, error) {
	q, args := query.NewBuilder(projection, newestFirst, latestID).
		WhereEquals("entity", entity).
		Build()

	entries, err := repository.QueryMany(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", entity, err)
	}
	return entries, nil
}

func (r *repo) FindByHash(ctx context.Context, category Category, hash string) (*HistoryEntry, error) {
	q, args := query.NewBuilder(projection, newestFirst, latestID).
		WhereEquals("category", category).
		WhereEquals("content_hash", hash).
		WhereEquals("status", StatusProcessed).
		BuildFirst()

	return r.first(ctx, q, args)
}

func (r *repo) Find(ctx context.Context, docID uuid.UUID) (*HistoryEntry, error) {
	q, args := query.NewBuilder(projection, latestID).
		WhereEquals("doc_id", docID).
		BuildFirst()

	return r.first(ctx, q, args)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[HistoryEntry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, newestFirst, latestID).
		WhereSearch(page.Search, "filename", "entity")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	entries, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	result := pagination.NewPageResult(entries, total, page)
	return &result, nil
}

func (r *repo) first(ctx context.Context, q string, args []any) (*HistoryEntry, error) {
	e, err := repository.QueryOne(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}
