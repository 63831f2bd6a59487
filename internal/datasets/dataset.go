// Package datasets stores the live table of each entity and its
// append-only backup table. All mutation happens inside Store.Swap so a
// generation is replaced atomically.
package datasets

import (
	"context"
	"errors"
	"strings"
	"time"
)

// BackupSuffix names the archive table of a dataset.
const BackupSuffix = "_backup"

// Provenance columns prepended to every backup row.
const (
	ColumnDocID           = "doc_id"
	ColumnUploadTimestamp = "upload_timestamp"
	ColumnBackupTimestamp = "backup_timestamp"
)

var ErrInvalidTable = errors.New("invalid dataset name")

// Cell is one column value.
type Cell struct {
	Column string
	Value  string
}

// Row is an ordered set of cells. A column absent from the row is stored
// as NULL.
type Row []Cell

// Columns returns the row's column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, c := range r {
		cols[i] = c.Column
	}
	return cols
}

// Get returns the value of column and whether it is present.
func (r Row) Get(column string) (string, bool) {
	for _, c := range r {
		if c.Column == column {
			return c.Value, true
		}
	}
	return "", false
}

// Map returns the row as a column to value map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, c := range r {
		m[c.Column] = c.Value
	}
	return m
}

func (r Row) without(column string) Row {
	out := make(Row, 0, len(r))
	for _, c := range r {
		if c.Column != column {
			out = append(out, c)
		}
	}
	return out
}

// TableName derives the live table name of an entity: trimmed,
// lower-cased, with runs of whitespace and dashes replaced by "_".
func TableName(entity string) (string, error) {
	name := strings.Join(strings.FieldsFunc(strings.ToLower(strings.TrimSpace(entity)), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-'
	}), "_")
	if name == "" || strings.ContainsAny(name, "/\\.\x00") {
		return "", ErrInvalidTable
	}
	return name, nil
}

// BackupTable returns the archive table of table.
func BackupTable(table string) string {
	return table + BackupSuffix
}

// Provenance tags archived rows with the generation they came from.
type Provenance struct {
	DocID           string
	UploadTimestamp string
	BackupTimestamp time.Time
}

// Store reads datasets and runs replacement transactions.
type Store interface {
	Exists(ctx context.Context, table string) (bool, error)
	// Columns returns the table's columns in ordinal order, or nil when
	// the table does not exist.
	Columns(ctx context.Context, table string) ([]string, error)
	Count(ctx context.Context, table string) (int, error)
	Rows(ctx context.Context, table string) ([]Row, error)
	// Backups returns the archived rows of table, oldest first.
	Backups(ctx context.Context, table string) ([]Row, error)

	// Swap runs fn in a transaction holding the table's exclusive
	// replacement lock. fn's changes commit only if it returns nil.
	Swap(ctx context.Context, table string, fn func(Tx) error) error
}

// Tx is a replacement transaction bound to one table.
type Tx interface {
	Exists(ctx context.Context) (bool, error)
	Columns(ctx context.Context) ([]string, error)

	// Backup appends every current row to the backup table tagged with
	// prov and returns the number archived. A failed backup leaves the
	// transaction usable.
	Backup(ctx context.Context, prov Provenance) (int, error)

	// Clear deletes all rows and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Create creates the table with TEXT columns when it does not exist.
	Create(ctx context.Context, columns []string) error

	// Insert writes rows restricted to columns in batches of at most
	// batchSize rows.
	Insert(ctx context.Context, columns []string, rows []Row, batchSize int) (int, error)
}

// backupColumn maps a dataset column into the backup table, keeping it
// clear of the provenance columns.
func backupColumn(column string) string {
	switch column {
	case "id", ColumnDocID, ColumnUploadTimestamp, ColumnBackupTimestamp:
		return "source_" + column
	}
	return column
}
