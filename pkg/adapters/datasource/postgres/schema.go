package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
)

// DiscoverColumns returns the columns of every base table in the given
// schemas, ordered by schema, table and ordinal position.
func (a *Adapter) DiscoverColumns(ctx context.Context, schemas []string) ([]datasource.ColumnMetadata, error) {
	const query = `
		SELECT
			c.table_schema,
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.ordinal_position
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND c.table_schema = ANY($1)
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, schemas)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var c datasource.ColumnMetadata
		if err := rows.Scan(&c.SchemaName, &c.TableName, &c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}
