// Package answer renders query results as short natural-language text.
package answer

import (
	"fmt"
	"strings"
)

const (
	// MaxListedRows is the largest result rendered as one line per row.
	MaxListedRows = 20

	NoResultsText = "No results matched your query for the specified filters."
	resultsHeader = "Here are the results:\n\n"
)

// Answer is the rendered response for one question.
type Answer struct {
	Text  string   `json:"answer"`
	Notes []string `json:"notes"`
}

// Format renders rows under columns. assumptions made while translating the
// question are reported as the first note. The question is accepted for
// phrasing context and does not change the output today.
func Format(question string, columns []string, rows [][]any, assumptions []string) Answer {
	ans := Answer{Notes: []string{}}
	if len(assumptions) > 0 {
		ans.Notes = append(ans.Notes, "Assumptions: "+strings.Join(assumptions, "; "))
	}

	switch {
	case len(rows) == 0:
		ans.Text = NoResultsText
	case len(columns) == 1 && len(rows) == 1:
		ans.Text = scalar(columns[0], ValueOf(cell(rows[0], 0)).String())
	case len(rows) <= MaxListedRows:
		ans.Text = resultsHeader + listRows(columns, rows)
	default:
		ans.Text = resultsHeader + table(columns, rows[:MaxListedRows])
		ans.Notes = append(ans.Notes, fmt.Sprintf("Showing first %d of %d rows.", MaxListedRows, len(rows)))
	}
	return ans
}

// scalar phrases a single value by what its column name says it is.
func scalar(column, v string) string {
	name := strings.ToLower(column)
	switch {
	case strings.Contains(name, "count"):
		return fmt.Sprintf("There are %s records matching your criteria.", v)
	case strings.Contains(name, "avg"), strings.Contains(name, "average"):
		return fmt.Sprintf("The average value is %s.", v)
	case strings.Contains(name, "sum"), strings.Contains(name, "total"):
		return fmt.Sprintf("The total value is %s.", v)
	case strings.Contains(name, "min"):
		return fmt.Sprintf("The minimum value is %s.", v)
	case strings.Contains(name, "max"):
		return fmt.Sprintf("The maximum value is %s.", v)
	default:
		return fmt.Sprintf("%s = %s", column, v)
	}
}

func listRows(columns []string, rows [][]any) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		pairs := make([]string, len(columns))
		for j, col := range columns {
			pairs[j] = col + ": " + ValueOf(cell(row, j)).String()
		}
		lines[i] = strings.Join(pairs, ", ")
	}
	return strings.Join(lines, "\n")
}

func table(columns []string, rows [][]any) string {
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, strings.Join(columns, " | "))

	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, strings.Join(sep, " | "))

	for _, row := range rows {
		cells := make([]string, len(columns))
		for j := range columns {
			cells[j] = ValueOf(cell(row, j)).String()
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}

func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}
