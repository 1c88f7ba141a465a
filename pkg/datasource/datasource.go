// Package datasource abstracts the tabular store of process records and
// flows. A source exposes named tables of rows; queries are equality filters
// over columns plus an optional projection.
package datasource

import (
	"context"
	"fmt"

	"github.com/kadirpekel/upchain/pkg/config"
)

// Value is one cell. Null distinguishes an absent cell from an empty string.
type Value struct {
	Raw  string
	Null bool
}

// String returns the cell content, empty for null cells.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	return v.Raw
}

// Null is the explicit marker for a missing cell.
var Null = Value{Null: true}

// Row maps column name to cell value.
type Row map[string]Value

// Query is an equality-filtered, optionally projected table read.
type Query struct {
	// Filters match rows where every named column equals the given value.
	Filters map[string]string

	// Columns restricts the returned cells. Empty means all columns.
	// A projected column absent from the table is an error; a cell
	// missing within a row yields Null.
	Columns []string
}

// Source is a read-only table store.
//
// Implementations must be safe for concurrent use; exploration queries it
// from several branches at once.
type Source interface {
	// ListTables returns the table names in the source.
	ListTables(ctx context.Context) ([]string, error)

	// Select returns the rows of table matching the query. An unknown
	// table yields ErrTableNotFound, an unknown filter or projection
	// column ErrColumnNotFound.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	Close() error
}

// New creates the configured data source.
func New(cfg *config.DataSourceConfig) (Source, error) {
	switch cfg.Type {
	case "excel", "":
		return OpenExcel(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown datasource type: %q", cfg.Type)
	}
}
