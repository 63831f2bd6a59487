// Package ingest replaces a dataset with a new generation of rows after
// archiving the generation it overwrites.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/JaimeStill/reconify/internal/datasets"
	"github.com/JaimeStill/reconify/internal/provenance"
)

const DefaultBatchSize = 500

// Resolver identifies the generation a dataset currently holds.
type Resolver interface {
	FindPreviousGeneration(ctx context.Context, entity, currentDocID string) provenance.Generation
}

// Result reports the outcome of one generation swap.
type Result struct {
	RowsWritten int `json:"rows_written"`
	BackupCount int `json:"backup_count"`
}

type Engine struct {
	store     datasets.Store
	resolver  Resolver
	logger    *slog.Logger
	batchSize int
	locks     *keyedMutex
	now       func() time.Time
}

func New(store datasets.Store, resolver Resolver, logger *slog.Logger, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		store:     store,
		resolver:  resolver,
		logger:    logger.With("system", "ingest"),
		batchSize: batchSize,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// IngestGeneration replaces dataset with rows. The outgoing generation is
// archived first, then cleared, then rows are inserted, all in one store
// transaction. Ingestions into the same dataset run one at a time.
//
// A failed archive is logged and the swap continues with BackupCount 0.
// A failed clear returns *ClearError and a failed insert returns
// *InsertError; in both cases the previous generation is left in place.
func (e *Engine) IngestGeneration(
	ctx context.Context,
	dataset string,
	rows []datasets.Row,
	docID string,
	ts time.Time,
) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyGeneration
	}

	table, err := datasets.TableName(dataset)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", err, dataset)
	}

	unlock := e.locks.lock(table)
	defer unlock()

	logger := e.logger.With("entity", dataset, "table", table, "doc_id", docID)

	var res Result
	err = e.store.Swap(ctx, table, func(tx datasets.Tx) error {
		res = Result{}

		exists, err := tx.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check dataset %s: %w", table, err)
		}

		columns := rows[0].Columns()

		if !exists {
			logger.Info("first generation, nothing to back up")
			if err := tx.Create(ctx, columns); err != nil {
				return &InsertError{Table: table, Err: err}
			}
		} else {
			res.BackupCount = e.backup(ctx, tx, logger, dataset, table, docID)

			if _, err := tx.Clear(ctx); err != nil {
				return &ClearError{Table: table, Err: err}
			}

			existing, err := tx.Columns(ctx)
			if err != nil {
				return &InsertError{Table: table, Err: err}
			}
			columns = retain(columns, existing)
			if len(columns) == 0 {
				return &InsertError{Table: table, Err: errors.New("no columns in common with existing dataset")}
			}
		}

		n, err := tx.Insert(ctx, columns, rows, e.batchSize)
		if err != nil {
			return &InsertError{Table: table, Err: err}
		}
		res.RowsWritten = n
		return nil
	})
	if err != nil {
		logger.Error("generation swap failed", "error", err)
		return Result{}, err
	}

	logger.Info("generation ingested",
		"rows", res.RowsWritten,
		"backup_count", res.BackupCount,
		"upload_timestamp", ts.UTC().Format(time.RFC3339Nano),
	)
	return res, nil
}

// backup archives the current generation and returns the number of rows
// archived, or 0 when the archive failed.
func (e *Engine) backup(
	ctx context.Context,
	tx datasets.Tx,
	logger *slog.Logger,
	dataset, table, docID string,
) int {
	prev := e.resolver.FindPreviousGeneration(ctx, dataset, docID)

	n, err := tx.Backup(ctx, datasets.Provenance{
		DocID:           prev.DocID,
		UploadTimestamp: prev.Timestamp,
		BackupTimestamp: e.now().UTC(),
	})
	if err != nil {
		logger.Warn("backup skipped", "error", &BackupError{Table: table, Err: err})
		return 0
	}

	logger.Info("previous generation archived",
		"backup_table", datasets.BackupTable(table),
		"rows", n,
		"prev_doc_id", prev.DocID,
	)
	return n
}

// retain keeps the columns present in existing, in their original order.
func retain(columns, existing []string) []string {
	return slices.DeleteFunc(slices.Clone(columns), func(c string) bool {
		return !slices.Contains(existing, c)
	})
}
