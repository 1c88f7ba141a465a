package datasource

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// ExcelSource reads tables from a spreadsheet workbook. Each sheet is a
// table; the first row is the header, every following row is a record.
//
// The workbook is parsed once at open time and served from memory, so
// concurrent queries never touch the file.
type ExcelSource struct {
	path string

	mu     sync.RWMutex
	tables map[string]*excelTable
	order  []string
}

type excelTable struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// OpenExcel loads a workbook into an ExcelSource.
func OpenExcel(path string) (*ExcelSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	src := &ExcelSource{path: path, tables: make(map[string]*excelTable)}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			// Sheet without a header row is still a valid, empty table.
			src.tables[sheet] = &excelTable{index: make(map[string]int)}
			src.order = append(src.order, sheet)
			continue
		}

		table := &excelTable{index: make(map[string]int)}
		for i, name := range rows[0] {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			table.columns = append(table.columns, name)
			table.index[name] = i
		}
		table.rows = rows[1:]

		src.tables[sheet] = table
		src.order = append(src.order, sheet)
	}

	return src, nil
}

// ListTables returns the sheet names in workbook order.
func (s *ExcelSource) ListTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Select returns rows of table matching the query filters, projected to the
// requested columns.
func (s *ExcelSource) Select(_ context.Context, table string, q Query) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, &TableNotFoundError{Table: table}
	}

	for col := range q.Filters {
		if _, ok := t.index[col]; !ok {
			return nil, &ColumnNotFoundError{Table: table, Column: col}
		}
	}

	project := q.Columns
	if len(project) == 0 {
		project = t.columns
	} else {
		for _, col := range project {
			if _, ok := t.index[col]; !ok {
				return nil, &ColumnNotFoundError{Table: table, Column: col}
			}
		}
	}

	var out []Row
	for _, raw := range t.rows {
		if !t.matches(raw, q.Filters) {
			continue
		}

		row := make(Row, len(project))
		for _, col := range project {
			row[col] = t.cell(raw, col)
		}
		out = append(out, row)
	}

	return out, nil
}

func (s *ExcelSource) Close() error { return nil }

func (t *excelTable) matches(raw []string, filters map[string]string) bool {
	for col, want := range filters {
		cell := t.cell(raw, col)
		if cell.Null || strings.TrimSpace(cell.Raw) != want {
			return false
		}
	}
	return true
}

// cell returns the value at col, or Null when the row is shorter than the
// header or the cell is empty.
func (t *excelTable) cell(raw []string, col string) Value {
	i, ok := t.index[col]
	if !ok || i >= len(raw) {
		return Null
	}
	if strings.TrimSpace(raw[i]) == "" {
		return Null
	}
	return Value{Raw: raw[i]}
}

var _ Source = (*ExcelSource)(nil)
