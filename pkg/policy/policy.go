// Package policy holds the operator-defined allowlist that every generated
// query is checked against.
//
// An AllowlistPolicy is built once at process start and is read-only for the
// life of the process, so a single instance is shared by all request
// goroutines without locking. Accessors return copies.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultForbiddenKinds are the statement kinds that must never appear
// anywhere in a generated query's syntax tree.
var DefaultForbiddenKinds = []string{
	"Insert", "Update", "Delete", "Merge", "Truncate",
	"Create", "Drop", "Alter",
	"Grant", "Copy", "Lock", "Call", "Do",
}

// DefaultForbiddenFunctions are functions a generated query may not call.
// They run SQL text or touch server state that the table allowlist cannot
// see. A trailing * matches any name with that prefix.
var DefaultForbiddenFunctions = []string{
	"query_to_xml*", "table_to_xml*", "schema_to_xml*", "database_to_xml*", "cursor_to_xml*",
	"dblink*",
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
	"lo_*",
	"set_config",
	"pg_terminate_backend", "pg_cancel_backend",
	"pg_sleep*",
}

// DefaultSchemas are the schemas a schema-qualified table reference may name.
var DefaultSchemas = []string{"public"}

var (
	ErrEmptyPolicy = errors.New("allowlist policy must contain at least one table")
)

// AllowlistPolicy maps permitted table names to their permitted columns and
// carries the forbidden statement kinds and function names.
//
// Column sets are part of the policy data but are NOT enforced by the
// validator today: a query may select any column of an allowlisted table.
// Functions that evaluate SQL passed as text are only caught through the
// forbidden function list, since the tables they read never appear in the
// syntax tree.
type AllowlistPolicy struct {
	tables    map[string]map[string]struct{}
	forbidden map[string]struct{}
	functions []string // lowercased; a trailing * is a prefix match
	schemas   map[string]struct{}
}

// Option customizes a policy at construction time.
type Option func(*AllowlistPolicy)

// WithForbiddenKinds replaces the default forbidden kind set.
func WithForbiddenKinds(kinds []string) Option {
	return func(p *AllowlistPolicy) {
		p.forbidden = toSet(kinds)
	}
}

// WithForbiddenFunctions replaces the default forbidden function list.
// An empty list allows every function.
func WithForbiddenFunctions(names []string) Option {
	return func(p *AllowlistPolicy) {
		p.functions = normalizeFunctions(names)
	}
}

// WithSchemas replaces the schemas that qualified table references may use.
func WithSchemas(schemas []string) Option {
	return func(p *AllowlistPolicy) {
		p.schemas = toSet(schemas)
	}
}

// New builds a policy from a table -> columns mapping.
// Table names must be non-empty; the mapping must contain at least one table.
func New(tables map[string][]string, opts ...Option) (*AllowlistPolicy, error) {
	if len(tables) == 0 {
		return nil, ErrEmptyPolicy
	}

	p := &AllowlistPolicy{
		tables:    make(map[string]map[string]struct{}, len(tables)),
		forbidden: toSet(DefaultForbiddenKinds),
		functions: normalizeFunctions(DefaultForbiddenFunctions),
		schemas:   toSet(DefaultSchemas),
	}

	for name, columns := range tables {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("allowlist contains an empty table name")
		}
		if _, dup := p.tables[trimmed]; dup {
			return nil, fmt.Errorf("table %q is listed more than once", trimmed)
		}
		p.tables[trimmed] = toSet(columns)
	}

	for _, opt := range opts {
		opt(p)
	}

	if len(p.forbidden) == 0 {
		return nil, fmt.Errorf("forbidden kind set must not be empty")
	}

	return p, nil
}

// HasTable reports whether name is allowlisted.
func (p *AllowlistPolicy) HasTable(name string) bool {
	_, ok := p.tables[name]
	return ok
}

// TableNames returns the allowlisted table names, sorted.
func (p *AllowlistPolicy) TableNames() []string {
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns the permitted columns of table, sorted. Nil if the table is
// not allowlisted.
func (p *AllowlistPolicy) Columns(table string) []string {
	cols, ok := p.tables[table]
	if !ok {
		return nil
	}
	return sortedKeys(cols)
}

// Tables returns a copy of the table -> sorted columns mapping.
func (p *AllowlistPolicy) Tables() map[string][]string {
	out := make(map[string][]string, len(p.tables))
	for name, cols := range p.tables {
		out[name] = sortedKeys(cols)
	}
	return out
}

// IsForbidden reports whether a statement kind is forbidden.
func (p *AllowlistPolicy) IsForbidden(kind string) bool {
	if kind == "" {
		return false
	}
	_, ok := p.forbidden[kind]
	return ok
}

// ForbiddenKinds returns the forbidden statement kinds, sorted.
func (p *AllowlistPolicy) ForbiddenKinds() []string {
	return sortedKeys(p.forbidden)
}

// IsForbiddenFunction reports whether calling the named function is
// forbidden. Names compare case-insensitively and without schema.
func (p *AllowlistPolicy) IsForbiddenFunction(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, pattern := range p.functions {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == pattern {
			return true
		}
	}
	return false
}

// ForbiddenFunctions returns the forbidden function patterns, sorted.
func (p *AllowlistPolicy) ForbiddenFunctions() []string {
	out := make([]string, len(p.functions))
	copy(out, p.functions)
	return out
}

// AllowsSchema reports whether a schema-qualified reference may use schema.
// An unqualified reference (empty schema) is always allowed.
func (p *AllowlistPolicy) AllowsSchema(schema string) bool {
	if schema == "" {
		return true
	}
	_, ok := p.schemas[schema]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func normalizeFunctions(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && n != "*" {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
