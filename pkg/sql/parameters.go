package sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
)

// placeholder is one :name occurrence located by scanPlaceholders.
type placeholder struct {
	start int // offset of ':'
	end   int // offset just past the name
	name  string
}

// ExtractPlaceholders finds all :name placeholders in SQL and returns a
// deduplicated list of names in order of first appearance.
//
// Colons inside string literals, quoted identifiers, dollar-quoted bodies and
// comments are ignored, as is the :: cast operator.
//
// Example:
//
//	sql := "SELECT * FROM repairs WHERE created_at >= :start_date AND created_at < :end_date"
//	names := ExtractPlaceholders(sql)
//	// names == []string{"start_date", "end_date"}
//
//	sql = "SELECT '10:30'::time, repair_cost::numeric FROM repairs WHERE card_id = :card_id"
//	names = ExtractPlaceholders(sql)
//	// names == []string{"card_id"}
func ExtractPlaceholders(sqlQuery string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range scanPlaceholders(sqlQuery) {
		if !seen[p.name] {
			seen[p.name] = true
			names = append(names, p.name)
		}
	}
	return names
}

// CheckBindings verifies every placeholder in SQL has a value in params.
// All missing names are reported together, sorted.
//
// Example:
//
//	err := CheckBindings("SELECT * FROM repairs WHERE created_at >= :start_date", nil)
//	// err is *apperrors.MissingParameterError{Names: []string{"start_date"}}
func CheckBindings(sqlQuery string, params map[string]any) error {
	var missing []string
	for _, name := range ExtractPlaceholders(sqlQuery) {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &apperrors.MissingParameterError{Names: missing}
}

// ToPositional replaces :name placeholders with PostgreSQL positional
// parameters ($1, $2, ...) and returns the rewritten SQL along with the
// parameter names in positional order. A name used more than once reuses its
// first position.
//
// Example:
//
//	sql := "SELECT * FROM repairs WHERE card_id = :card_id OR :card_id IS NULL"
//	positional, names := ToPositional(sql)
//	// positional == "SELECT * FROM repairs WHERE card_id = $1 OR $1 IS NULL"
//	// names == []string{"card_id"}
func ToPositional(sqlQuery string) (string, []string) {
	found := scanPlaceholders(sqlQuery)
	if len(found) == 0 {
		return sqlQuery, nil
	}

	positions := make(map[string]int)
	var names []string
	var b strings.Builder
	b.Grow(len(sqlQuery))

	last := 0
	for _, p := range found {
		pos, ok := positions[p.name]
		if !ok {
			names = append(names, p.name)
			pos = len(names)
			positions[p.name] = pos
		}
		b.WriteString(sqlQuery[last:p.start])
		b.WriteString("$")
		b.WriteString(strconv.Itoa(pos))
		last = p.end
	}
	b.WriteString(sqlQuery[last:])

	return b.String(), names
}

// BindArgs orders parameter values to match the names returned by
// ToPositional. Every name must be present in params; run CheckBindings first.
func BindArgs(names []string, params map[string]any) ([]any, error) {
	args := make([]any, len(names))
	for i, name := range names {
		value, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("no value bound for parameter %q", name)
		}
		args[i] = value
	}
	return args, nil
}

// scanPlaceholders walks SQL with a small lexer that understands the quoting
// and comment forms of PostgreSQL and reports every :name outside of them.
func scanPlaceholders(s string) []placeholder {
	var found []placeholder
	n := len(s)
	i := 0

	for i < n {
		ch := s[i]
		switch {
		case ch == '\'':
			i = skipSingleQuoted(s, i)
		case ch == '"':
			i = skipDoubleQuoted(s, i)
		case ch == '-' && i+1 < n && s[i+1] == '-':
			i = skipLineComment(s, i)
		case ch == '/' && i+1 < n && s[i+1] == '*':
			i = skipBlockComment(s, i)
		case ch == '$':
			i = skipDollarQuoted(s, i)
		case ch == ':':
			if i+1 < n && s[i+1] == ':' {
				i += 2 // cast operator
				continue
			}
			if i+1 < n && isIdentStart(s[i+1]) {
				j := i + 2
				for j < n && isIdentChar(s[j]) {
					j++
				}
				found = append(found, placeholder{start: i, end: j, name: s[i+1 : j]})
				i = j
				continue
			}
			i++
		default:
			i++
		}
	}

	return found
}

// skipSingleQuoted returns the offset just past a '...' literal starting at i.
// Handles SQL-standard doubled quotes and backslash escapes in E'' strings.
func skipSingleQuoted(s string, i int) int {
	escapes := i > 0 && (s[i-1] == 'E' || s[i-1] == 'e') && (i < 2 || !isIdentChar(s[i-2]))
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			if escapes {
				i += 2
				continue
			}
		case '\'':
			if i+1 < len(s) && s[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipDoubleQuoted(s string, i int) int {
	i++
	for i < len(s) {
		if s[i] == '"' {
			if i+1 < len(s) && s[i+1] == '"' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(s string, i int) int {
	for i < len(s) && s[i] != '\n' {
		i++
	}
	return i
}

// skipBlockComment honours PostgreSQL's nested /* */ comments.
func skipBlockComment(s string, i int) int {
	depth := 0
	for i < len(s) {
		if s[i] == '/' && i+1 < len(s) && s[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if s[i] == '*' && i+1 < len(s) && s[i+1] == '/' {
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return i
}

// skipDollarQuoted skips a $tag$...$tag$ body starting at i. A '$' that does
// not open a dollar quote (for example $1) is consumed as a single character.
func skipDollarQuoted(s string, i int) int {
	j := i + 1
	if j < len(s) && isIdentStart(s[j]) {
		for j < len(s) && isIdentChar(s[j]) {
			j++
		}
	}
	if j >= len(s) || s[j] != '$' {
		return i + 1
	}
	if i > 0 && isIdentChar(s[i-1]) {
		// part of an identifier such as foo$bar$
		return i + 1
	}

	tag := s[i : j+1]
	end := strings.Index(s[j+1:], tag)
	if end < 0 {
		return len(s)
	}
	return j + 1 + end + len(tag)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
