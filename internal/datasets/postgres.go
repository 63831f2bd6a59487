package datasets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/JaimeStill/reconify/pkg/repository"
)

// maxParams is PostgreSQL's bind parameter limit per statement.
const maxParams = 65535

const (
	existsQuery = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1)`

	columnsQuery = `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
)

type postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres returns a Store over db. Dataset columns are TEXT.
func NewPostgres(db *sql.DB, logger *slog.Logger) Store {
	return &postgres{
		db:     db,
		logger: logger.With("system", "datasets"),
	}
}

func (p *postgres) Exists(ctx context.Context, table string) (bool, error) {
	return tableExists(ctx, p.db, table)
}

func (p *postgres) Columns(ctx context.Context, table string) ([]string, error) {
	return tableColumns(ctx, p.db, table)
}

func (p *postgres) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(table)).Scan(&n)
	if err != nil {
		if repository.IsUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (p *postgres) Rows(ctx context.Context, table string) ([]Row, error) {
	return selectRows(ctx, p.db, "SELECT * FROM "+pq.QuoteIdentifier(table))
}

func (p *postgres) Backups(ctx context.Context, table string) ([]Row, error) {
	backup := BackupTable(table)
	rows, err := selectRows(ctx, p.db, "SELECT * FROM "+pq.QuoteIdentifier(backup)+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		rows[i] = r.without("id")
	}
	return rows, nil
}

// Swap serializes replacements of the same table across processes with a
// transaction-scoped advisory lock.
func (p *postgres) Swap(ctx context.Context, table string, fn func(Tx) error) error {
	_, err := repository.WithTx(ctx, p.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.AdvisoryXactLock(ctx, tx, "dataset:"+table); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(&pgTx{tx: tx, table: table, logger: p.logger})
	})
	return err
}

type pgTx struct {
	tx     *sql.Tx
	table  string
	logger *slog.Logger
}

func (t *pgTx) Exists(ctx context.Context) (bool, error) {
	return tableExists(ctx, t.tx, t.table)
}

func (t *pgTx) Columns(ctx context.Context) ([]string, error) {
	return tableColumns(ctx, t.tx, t.table)
}

func (t *pgTx) Backup(ctx context.Context, prov Provenance) (int, error) {
	columns, err := t.Columns(ctx)
	if err != nil {
		return 0, err
	}

	var archived int
	err = repository.WithSavepoint(ctx, t.tx, "dataset_backup", func() error {
		backup := pq.QuoteIdentifier(BackupTable(t.table))

		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			%s TEXT NOT NULL,
			%s TEXT NOT NULL,
			%s TIMESTAMPTZ NOT NULL)`,
			backup,
			ColumnDocID,
			ColumnUploadTimestamp,
			ColumnBackupTimestamp,
		)
		if _, err := t.tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create %s: %w", BackupTable(t.table), err)
		}

		targets := []string{ColumnDocID, ColumnUploadTimestamp, ColumnBackupTimestamp}
		sources := []string{"$1", "$2", "$3"}

		for _, c := range columns {
			bc := pq.QuoteIdentifier(backupColumn(c))
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", backup, bc)
			if _, err := t.tx.ExecContext(ctx, alter); err != nil {
				return fmt.Errorf("extend %s: %w", BackupTable(t.table), err)
			}
			targets = append(targets, bc)
			sources = append(sources, pq.QuoteIdentifier(c)+"::text")
		}

		insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			backup,
			strings.Join(targets, ", "),
			strings.Join(sources, ", "),
			pq.QuoteIdentifier(t.table),
		)

		n, err := repository.ExecAffected(ctx, t.tx, insert,
			prov.DocID, prov.UploadTimestamp, prov.BackupTimestamp.UTC())
		if err != nil {
			return fmt.Errorf("archive %s: %w", t.table, err)
		}
		archived = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return archived, nil
}

func (t *pgTx) Clear(ctx context.Context) (int, error) {
	n, err := repository.ExecAffected(ctx, t.tx, "DELETE FROM "+pq.QuoteIdentifier(t.table))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *pgTx) Create(ctx context.Context, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("create %s: no columns", t.table)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pq.QuoteIdentifier(c) + " TEXT"
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pq.QuoteIdentifier(t.table), strings.Join(defs, ", "))
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", t.table, err)
	}
	return nil
}

func (t *pgTx) Insert(ctx context.Context, columns []string, rows []Row, batchSize int) (int, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return 0, nil
	}

	batchSize = max(1, min(batchSize, maxParams/len(columns)))

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		pq.QuoteIdentifier(t.table), strings.Join(quoted, ", "))

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		stmt, args := insertBatch(head, columns, batch)

		n, err := repository.ExecAffected(ctx, t.tx, stmt, args...)
		if err != nil {
			return written, fmt.Errorf("insert rows %d-%d: %w", start+1, start+len(batch), err)
		}
		written += int(n)
	}
	return written, nil
}

func insertBatch(head string, columns []string, rows []Row) (string, []any) {
	var sb strings.Builder
	sb.WriteString(head)

	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		values := r.Map()
		for j, c := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			if v, ok := values[c]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
			sb.WriteString("$" + strconv.Itoa(len(args)))
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}

func tableExists(ctx context.Context, q repository.Querier, table string) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, existsQuery, table).Scan(&ok); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return ok, nil
}

func tableColumns(ctx context.Context, q repository.Querier, table string) ([]string, error) {
	cols, err := repository.QueryMany(ctx, q, columnsQuery, []any{table}, func(s repository.Scanner) (string, error) {
		var c string
		err := s.Scan(&c)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

// selectRows reads every column as text. NULL cells are left out of the
// row.
func selectRows(ctx context.Context, q repository.Querier, query string) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	vals := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, 0, len(cols))
		for i, c := range cols {
			if vals[i].Valid {
				row = append(row, Cell{Column: c, Value: vals[i].String})
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
