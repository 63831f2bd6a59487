// Package query builds parameterized SELECT statements over a single table.
package query

import (
	"fmt"
	"strings"
)

// ProjectionMap maps view field names to qualified columns (alias.column).
// Only projected fields are addressable by filters and sorting.
type ProjectionMap struct {
	schema  string
	table   string
	alias   string
	columns map[string]string
	order   []string
}

func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		schema:  schema,
		table:   table,
		alias:   alias,
		columns: make(map[string]string),
	}
}

// Project registers column under view. Projecting the same view twice
// replaces the column but keeps its position in the select list.
func (p *ProjectionMap) Project(column, view string) *ProjectionMap {
	qualified := p.alias + "." + column
	if _, ok := p.columns[view]; !ok {
		p.order = append(p.order, view)
	}
	p.columns[view] = qualified
	return p
}

func (p *ProjectionMap) Alias() string { return p.alias }

// From returns the table reference used in FROM clauses.
func (p *ProjectionMap) From() string {
	return fmt.Sprintf("%s.%s %s", p.schema, p.table, p.alias)
}

// Has reports whether view is a projected field.
func (p *ProjectionMap) Has(view string) bool {
	_, ok := p.columns[view]
	return ok
}

// Column returns the qualified column for view and whether it is projected.
func (p *ProjectionMap) Column(view string) (string, bool) {
	col, ok := p.columns[view]
	return col, ok
}

// Columns returns the select list in projection order.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.ColumnList(), ", ")
}

func (p *ProjectionMap) ColumnList() []string {
	list := make([]string, len(p.order))
	for i, view := range p.order {
		list[i] = p.columns[view]
	}
	return list
}
