package datasource

import (
	"context"

	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
)

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// QueryExecutor runs guardrail-prepared queries.
//
// Implementations must execute inside a read-only transaction with a
// server-side statement timeout of q.StatementTimeout, bind q.Args
// positionally, and read at most q.MaxRows rows. Every failure, including a
// timeout or a rejected write, is returned as *apperrors.ExecutionError with
// no partial result.
type QueryExecutor interface {
	Query(ctx context.Context, q *guardrail.PreparedQuery) (*ResultSet, error)

	// Close releases any resources held by the executor.
	Close() error
}

// SchemaDiscoverer reads the live column layout so the allowlist can be
// checked against it.
type SchemaDiscoverer interface {
	// DiscoverColumns returns the columns of every base table in schemas.
	DiscoverColumns(ctx context.Context, schemas []string) ([]ColumnMetadata, error)

	Close() error
}

// Adapter is everything a registered datasource provides.
type Adapter interface {
	ConnectionTester
	QueryExecutor
	SchemaDiscoverer
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "NUMERIC")
}

// ResultSet is an executed query's output. Column names are in select-list
// order and every row has one value per column.
type ResultSet struct {
	Columns []ColumnInfo `json:"columns"`
	Rows    [][]any      `json:"rows"`
	// Truncated is set when more rows were available than the row cap allowed.
	Truncated bool `json:"truncated"`
}

// ColumnNames returns the column names in order.
func (r *ResultSet) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the number of rows read.
func (r *ResultSet) RowCount() int {
	return len(r.Rows)
}
