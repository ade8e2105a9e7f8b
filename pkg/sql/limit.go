package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// rowCount is a LIMIT, FETCH or OFFSET operand: an integer, a named
// placeholder or a positional parameter.
const rowCount = `(?:\d+|:[A-Za-z_]\w*|\$\d+)`

// offsetClause is the OFFSET that may follow the row limit.
const offsetClause = `(?:\s+offset\s+` + rowCount + `(?:\s+rows?)?)?`

var (
	// trailingLimit matches a row limit that ends the statement: LIMIT n or
	// FETCH FIRST|NEXT [n] ROW(S) ONLY|WITH TIES, optionally followed by
	// OFFSET. OFFSET ... LIMIT n also ends in a match. A LIMIT inside a
	// subquery does not bound the outer result and is not matched.
	trailingLimit = regexp.MustCompile(`(?i)\b(?:limit\s+` + rowCount +
		`|fetch\s+(?:first|next)(?:\s+` + rowCount + `)?\s+rows?\s+(?:only|with\s+ties))` +
		offsetClause + `\s*$`)

	// trailingLimitAll matches LIMIT ALL ending the statement. It places no
	// bound, so EnforceLimit replaces ALL with the row cap.
	trailingLimitAll = regexp.MustCompile(`(?i)\blimit\s+all(` + offsetClause + `\s*)$`)
)

// EnforceLimit guarantees the statement ends with a row limit. One trailing
// semicolon is stripped. If the statement already ends in a row limit it is
// returned as is; a trailing LIMIT ALL becomes LIMIT <maxRows>; otherwise
// " LIMIT <maxRows>" is appended.
//
// A limit given as a placeholder is kept. The executor still reads at most
// maxRows rows.
//
// EnforceLimit is textual and idempotent. It does not look at tables or
// columns and is not a substitute for Validate. Strip comments first: a
// trailing -- comment would swallow the appended clause.
//
// Example:
//
//	EnforceLimit("SELECT * FROM vehicle_cards;", 200)
//	// "SELECT * FROM vehicle_cards LIMIT 200"
//	EnforceLimit("SELECT * FROM vehicle_cards LIMIT 10 OFFSET :off", 200)
//	// "SELECT * FROM vehicle_cards LIMIT 10 OFFSET :off"
func EnforceLimit(sqlQuery string, maxRows int) string {
	stripped := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if HasLimit(stripped) {
		return stripped
	}
	if trailingLimitAll.MatchString(stripped) {
		return trailingLimitAll.ReplaceAllString(stripped, fmt.Sprintf("LIMIT %d${1}", maxRows))
	}
	return strings.TrimSpace(fmt.Sprintf("%s LIMIT %d", stripped, maxRows))
}

// HasLimit reports whether the statement already ends in a row limit.
// LIMIT ALL is not one.
func HasLimit(sqlQuery string) bool {
	return trailingLimit.MatchString(stripTrailingSemicolon(sqlQuery))
}

// stripTrailingSemicolon removes one trailing semicolon and the whitespace
// around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
