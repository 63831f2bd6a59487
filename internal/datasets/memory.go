package datasets

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Op names a Tx mutation for fault injection.
type Op string

const (
	OpBackup Op = "backup"
	OpClear  Op = "clear"
	OpCreate Op = "create"
	OpInsert Op = "insert"
)

// Fault returns a non-nil error to make op fail on table.
type Fault func(op Op, table string) error

type memTable struct {
	columns []string
	rows    []Row
}

func (t *memTable) clone() *memTable {
	if t == nil {
		return nil
	}
	return &memTable{
		columns: slices.Clone(t.columns),
		rows:    slices.Clone(t.rows),
	}
}

// Memory is an in-process Store. Swap works on a copy of the table and its
// backups and publishes the copy only on success.
type Memory struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	backups map[string][]Row
	fault   Fault
}

func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[string]*memTable),
		backups: make(map[string][]Row),
	}
}

// Inject installs f, replacing any previous fault. A nil f clears it.
func (m *Memory) Inject(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// Seed replaces table with rows.
func (m *Memory) Seed(table string, columns []string, rows []Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = &memTable{columns: slices.Clone(columns), rows: slices.Clone(rows)}
}

func (m *Memory) Exists(ctx context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	return ok, nil
}

func (m *Memory) Columns(ctx context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return slices.Clone(t.columns), nil
	}
	return nil, nil
}

func (m *Memory) Count(ctx context.Context, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return len(t.rows), nil
	}
	return 0, nil
}

func (m *Memory) Rows(ctx context.Context, table string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return slices.Clone(t.rows), nil
	}
	return []Row{}, nil
}

func (m *Memory) Backups(ctx context.Context, table string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.backups[table]), nil
}

// Swap holds the store lock for the whole transaction, serializing
// replacements of every table.
func (m *Memory) Swap(ctx context.Context, table string, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		table:   table,
		data:    m.tables[table].clone(),
		backups: slices.Clone(m.backups[table]),
		fault:   m.fault,
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if tx.data != nil {
		m.tables[table] = tx.data
	}
	m.backups[table] = tx.backups
	return nil
}

type memTx struct {
	table   string
	data    *memTable
	backups []Row
	fault   Fault
}

func (t *memTx) fail(op Op) error {
	if t.fault == nil {
		return nil
	}
	if err := t.fault(op, t.table); err != nil {
		return fmt.Errorf("%s %s: %w", op, t.table, err)
	}
	return nil
}

func (t *memTx) Exists(ctx context.Context) (bool, error) {
	return t.data != nil, nil
}

func (t *memTx) Columns(ctx context.Context) ([]string, error) {
	if t.data == nil {
		return nil, nil
	}
	return slices.Clone(t.data.columns), nil
}

func (t *memTx) Backup(ctx context.Context, prov Provenance) (int, error) {
	if err := t.fail(OpBackup); err != nil {
		return 0, err
	}
	if t.data == nil {
		return 0, nil
	}

	ts := prov.BackupTimestamp.UTC().Format(time.RFC3339Nano)
	for _, r := range t.data.rows {
		b := Row{
			{Column: ColumnDocID, Value: prov.DocID},
			{Column: ColumnUploadTimestamp, Value: prov.UploadTimestamp},
			{Column: ColumnBackupTimestamp, Value: ts},
		}
		for _, c := range r {
			b = append(b, Cell{Column: backupColumn(c.Column), Value: c.Value})
		}
		t.backups = append(t.backups, b)
	}
	return len(t.data.rows), nil
}

func (t *memTx) Clear(ctx context.Context) (int, error) {
	if err := t.fail(OpClear); err != nil {
		return 0, err
	}
	if t.data == nil {
		return 0, nil
	}
	n := len(t.data.rows)
	t.data.rows = nil
	return n, nil
}

func (t *memTx) Create(ctx context.Context, columns []string) error {
	if err := t.fail(OpCreate); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("create %s: no columns", t.table)
	}
	if t.data == nil {
		t.data = &memTable{columns: slices.Clone(columns)}
	}
	return nil
}

func (t *memTx) Insert(ctx context.Context, columns []string, rows []Row, batchSize int) (int, error) {
	if t.data == nil {
		return 0, fmt.Errorf("insert %s: table does not exist", t.table)
	}
	batchSize = max(batchSize, 1)

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		if err := t.fail(OpInsert); err != nil {
			return written, err
		}
		for _, r := range rows[start:min(start+batchSize, len(rows))] {
			values := r.Map()
			out := make(Row, 0, len(columns))
			for _, c := range columns {
				if v, ok := values[c]; ok {
					out = append(out, Cell{Column: c, Value: v})
				}
			}
			t.data.rows = append(t.data.rows, out)
			written++
		}
	}
	return written, nil
}
