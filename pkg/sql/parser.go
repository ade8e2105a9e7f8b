package sql

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
)

// SyntaxTree is the parsed form of one SQL input. It is the only view of the
// parser the validator depends on.
type SyntaxTree interface {
	// StatementCount is the number of top-level statements in the input.
	StatementCount() int
	// RootKind is the canonical kind of the single root statement ("Select",
	// "Drop", ...). Empty when there is no statement; "StatementList" when
	// there is more than one.
	RootKind() string
	// Walk visits every node in pre-order, including subqueries and CTE
	// bodies. Returning false from fn stops the walk.
	Walk(fn func(Node) bool)
	// Tables returns every relation referenced anywhere in the tree, in
	// traversal order. References to an in-scope CTE are excluded.
	Tables() []TableRef
}

// Node is one syntax tree node as seen by policy checks.
type Node struct {
	Type string // parser node type, e.g. "DropStmt"
	Kind string // canonical operation kind, "" for non-statement nodes
	Func string // called function name without schema, set on "FuncCall" nodes
}

// TableRef is a relation reference. Schema and Catalog are empty unless the
// query qualified the name.
type TableRef struct {
	Catalog string
	Schema  string
	Name    string
}

// String renders the reference the way it was qualified in the query.
func (r TableRef) String() string {
	parts := make([]string, 0, 3)
	if r.Catalog != "" {
		parts = append(parts, r.Catalog)
	}
	if r.Schema != "" {
		parts = append(parts, r.Schema)
	}
	parts = append(parts, r.Name)
	return strings.Join(parts, ".")
}

// Qualified reports whether the query named a schema or catalog.
func (r TableRef) Qualified() bool {
	return r.Schema != "" || r.Catalog != ""
}

const statementListKind = "StatementList"

// nodeKinds maps parser node types to operation kinds where the type name
// prefix alone is not enough.
var nodeKinds = map[string]string{
	"SelectStmt":    "Select",
	"InsertStmt":    "Insert",
	"UpdateStmt":    "Update",
	"DeleteStmt":    "Delete",
	"MergeStmt":     "Merge",
	"TruncateStmt":  "Truncate",
	"ViewStmt":      "Create",
	"IndexStmt":     "Create",
	"IntoClause":    "Create", // SELECT ... INTO
	"RenameStmt":    "Alter",
	"GrantStmt":     "Grant", // also REVOKE
	"GrantRoleStmt": "Grant",
	"CopyStmt":      "Copy",
	"LockStmt":      "Lock",
	"LockingClause": "Lock", // FOR UPDATE / FOR SHARE
	"CallStmt":      "Call",
	"DoStmt":        "Do",
}

// kindOf classifies a parser node type.
func kindOf(nodeType string) string {
	if kind, ok := nodeKinds[nodeType]; ok {
		return kind
	}
	switch {
	case strings.HasPrefix(nodeType, "Create"):
		return "Create"
	case strings.HasPrefix(nodeType, "Alter"):
		return "Alter"
	case strings.HasPrefix(nodeType, "Drop"):
		return "Drop"
	}
	return ""
}

// Parse parses PostgreSQL text into a SyntaxTree. Named :placeholders are
// rewritten to positional parameters first, since they are not part of the
// PostgreSQL grammar.
func Parse(sqlQuery string) (SyntaxTree, error) {
	positional, _ := ToPositional(sqlQuery)

	result, err := pg_query.Parse(positional)
	if err != nil {
		return nil, &apperrors.SyntaxError{Message: err.Error()}
	}
	return &pgTree{result: result}, nil
}

// StripComments removes -- and /* */ comments using the PostgreSQL scanner.
// Each comment is replaced with a single space so adjacent tokens stay apart.
func StripComments(sqlQuery string) (string, error) {
	scan, err := pg_query.Scan(sqlQuery)
	if err != nil {
		return "", &apperrors.SyntaxError{Message: err.Error()}
	}

	var b strings.Builder
	b.Grow(len(sqlQuery))
	last := 0
	for _, tok := range scan.GetTokens() {
		if tok.GetToken() != pg_query.Token_SQL_COMMENT && tok.GetToken() != pg_query.Token_C_COMMENT {
			continue
		}
		start, end := int(tok.GetStart()), int(tok.GetEnd())
		if start < last || end > len(sqlQuery) {
			continue
		}
		b.WriteString(sqlQuery[last:start])
		b.WriteString(" ")
		last = end
	}
	b.WriteString(sqlQuery[last:])

	return b.String(), nil
}

// pgTree adapts a pg_query parse result. pg_query nodes are protobuf
// messages, so traversal goes through protoreflect in field declaration
// order, which keeps it deterministic.
type pgTree struct {
	result *pg_query.ParseResult
}

func (t *pgTree) StatementCount() int {
	return len(t.result.GetStmts())
}

func (t *pgTree) RootKind() string {
	switch t.StatementCount() {
	case 0:
		return ""
	case 1:
	default:
		return statementListKind
	}

	root := unwrapNode(t.result.GetStmts()[0].GetStmt())
	if root == nil {
		return ""
	}
	nodeType := typeName(root)
	if kind := kindOf(nodeType); kind != "" {
		return kind
	}
	return strings.TrimSuffix(nodeType, "Stmt")
}

func (t *pgTree) Walk(fn func(Node) bool) {
	for _, raw := range t.result.GetStmts() {
		if raw.GetStmt() == nil {
			continue
		}
		ok := walkMessage(raw.GetStmt().ProtoReflect(), func(m protoreflect.Message) bool {
			nodeType := typeName(m)
			n := Node{Type: nodeType, Kind: kindOf(nodeType)}
			if call, isCall := m.Interface().(*pg_query.FuncCall); isCall {
				n.Func = funcName(call)
			}
			return fn(n)
		})
		if !ok {
			return
		}
	}
}

func (t *pgTree) Tables() []TableRef {
	var refs []TableRef
	for _, raw := range t.result.GetStmts() {
		if raw.GetStmt() == nil {
			continue
		}
		collectTables(raw.GetStmt().ProtoReflect(), nil, &refs)
	}
	return refs
}

// unwrapNode returns the concrete message held by a pg_query.Node oneof.
func unwrapNode(n *pg_query.Node) protoreflect.Message {
	if n == nil {
		return nil
	}
	m := n.ProtoReflect()
	oneof := m.Descriptor().Oneofs().ByName("node")
	if oneof == nil {
		return nil
	}
	fd := m.WhichOneof(oneof)
	if fd == nil {
		return nil
	}
	return m.Get(fd).Message()
}

// funcName is the last part of a possibly schema-qualified function name.
func funcName(call *pg_query.FuncCall) string {
	parts := call.GetFuncname()
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1].GetString_().GetSval()
}

func typeName(m protoreflect.Message) string {
	return string(m.Descriptor().Name())
}

// isWrapper reports whether m is the pg_query.Node oneof wrapper, which is
// traversed but never reported.
func isWrapper(m protoreflect.Message) bool {
	return typeName(m) == "Node"
}

// walkMessage visits m and every message reachable from it in pre-order.
func walkMessage(m protoreflect.Message, fn func(protoreflect.Message) bool) bool {
	if !isWrapper(m) && !fn(m) {
		return false
	}
	return eachChild(m, "", func(child protoreflect.Message) bool {
		return walkMessage(child, fn)
	})
}

// eachChild calls fn for every set message-typed field of m (list elements
// included) in field declaration order, skipping the field named skip.
func eachChild(m protoreflect.Message, skip protoreflect.Name, fn func(protoreflect.Message) bool) bool {
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() != protoreflect.MessageKind || fd.IsMap() || fd.Name() == skip {
			continue
		}
		if !m.Has(fd) {
			continue
		}

		v := m.Get(fd)
		if fd.IsList() {
			list := v.List()
			for j := 0; j < list.Len(); j++ {
				if !fn(list.Get(j).Message()) {
					return false
				}
			}
			continue
		}
		if !fn(v.Message()) {
			return false
		}
	}
	return true
}

// cteScope is the set of CTE names visible at a point in the tree.
type cteScope []map[string]struct{}

func (s cteScope) with(names []string) cteScope {
	if len(names) == 0 {
		return s
	}
	frame := make(map[string]struct{}, len(names))
	for _, n := range names {
		frame[n] = struct{}{}
	}
	next := make(cteScope, len(s), len(s)+1)
	copy(next, s)
	return append(next, frame)
}

func (s cteScope) has(name string) bool {
	for _, frame := range s {
		if _, ok := frame[name]; ok {
			return true
		}
	}
	return false
}

// collectTables gathers RangeVar references under m. A WITH clause brings its
// CTE names into scope for the statement body; a non-recursive CTE body sees
// only the CTEs declared before it, a recursive one sees all of them.
func collectTables(m protoreflect.Message, scope cteScope, out *[]TableRef) {
	if rv, ok := m.Interface().(*pg_query.RangeVar); ok {
		ref := TableRef{Catalog: rv.GetCatalogname(), Schema: rv.GetSchemaname(), Name: rv.GetRelname()}
		if ref.Qualified() || !scope.has(ref.Name) {
			*out = append(*out, ref)
		}
	}

	if wc := withClause(m); wc != nil {
		var names []string
		for _, n := range wc.GetCtes() {
			names = append(names, n.GetCommonTableExpr().GetCtename())
		}

		for i, n := range wc.GetCtes() {
			cte := n.GetCommonTableExpr()
			if cte == nil || cte.GetCtequery() == nil {
				continue
			}
			visible := names[:i]
			if wc.GetRecursive() {
				visible = names
			}
			collectTables(cte.GetCtequery().ProtoReflect(), scope.with(visible), out)
		}

		body := scope.with(names)
		eachChild(m, "with_clause", func(child protoreflect.Message) bool {
			collectTables(child, body, out)
			return true
		})
		return
	}

	eachChild(m, "", func(child protoreflect.Message) bool {
		collectTables(child, scope, out)
		return true
	})
}

// withClause returns the WITH clause of a statement message, if it has one.
func withClause(m protoreflect.Message) *pg_query.WithClause {
	fd := m.Descriptor().Fields().ByName("with_clause")
	if fd == nil || fd.Kind() != protoreflect.MessageKind || !m.Has(fd) {
		return nil
	}
	wc, _ := m.Get(fd).Message().Interface().(*pg_query.WithClause)
	return wc
}
