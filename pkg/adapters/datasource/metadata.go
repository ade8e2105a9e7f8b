package datasource

import "sort"

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	SchemaName      string
	TableName       string
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}

// AllowlistDrift lists allowlist entries that have no counterpart in the live
// schema.
type AllowlistDrift struct {
	MissingTables  []string            // allowlisted tables not found
	MissingColumns map[string][]string // table -> allowlisted columns not found
}

// Empty reports whether the allowlist matches the schema.
func (d AllowlistDrift) Empty() bool {
	return len(d.MissingTables) == 0 && len(d.MissingColumns) == 0
}

// CompareAllowlist checks an allowlist (table -> columns) against discovered
// columns. Table and column names are compared exactly.
func CompareAllowlist(allowlist map[string][]string, discovered []ColumnMetadata) AllowlistDrift {
	live := make(map[string]map[string]struct{})
	for _, c := range discovered {
		cols, ok := live[c.TableName]
		if !ok {
			cols = make(map[string]struct{})
			live[c.TableName] = cols
		}
		cols[c.ColumnName] = struct{}{}
	}

	drift := AllowlistDrift{}
	for table, columns := range allowlist {
		cols, ok := live[table]
		if !ok {
			drift.MissingTables = append(drift.MissingTables, table)
			continue
		}
		for _, col := range columns {
			if _, ok := cols[col]; !ok {
				if drift.MissingColumns == nil {
					drift.MissingColumns = make(map[string][]string)
				}
				drift.MissingColumns[table] = append(drift.MissingColumns[table], col)
			}
		}
	}

	sort.Strings(drift.MissingTables)
	for table := range drift.MissingColumns {
		sort.Strings(drift.MissingColumns[table])
	}
	return drift
}
