package prompts

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PanelSynonyms maps informal panel wording to stored panel_name values.
var PanelSynonyms = map[string]string{
	"front panel":  "bonnet",
	"hood":         "bonnet",
	"front bumper": "front_bumper",
	"front side":   "front_bumper",
	"back bumper":  "rear_bumper",
	"rear bumper":  "rear_bumper",
	"back side":    "rear_bumper",
}

// SeveritySynonyms maps informal severity wording to stored severity values.
var SeveritySynonyms = map[string]string{
	"high":     "severe",
	"critical": "severe",
	"low":      "minor",
	"medium":   "moderate",
}

// TableContext is one allowlisted table as shown to the model.
type TableContext struct {
	Name    string
	Columns []ColumnContext
}

// ColumnContext is one column; DataType is empty when the live schema was
// not discovered.
type ColumnContext struct {
	Name     string
	DataType string
}

// TablesFromAllowlist builds sorted table contexts from an allowlist
// (table -> columns). types, if non-nil, maps table -> column -> data type.
func TablesFromAllowlist(allowlist map[string][]string, types map[string]map[string]string) []TableContext {
	names := make([]string, 0, len(allowlist))
	for name := range allowlist {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]TableContext, 0, len(names))
	for _, name := range names {
		cols := append([]string(nil), allowlist[name]...)
		sort.Strings(cols)

		tc := TableContext{Name: name, Columns: make([]ColumnContext, len(cols))}
		for i, col := range cols {
			tc.Columns[i] = ColumnContext{Name: col, DataType: types[name][col]}
		}
		tables = append(tables, tc)
	}
	return tables
}

// NL2SQLSystemMessage returns the system message for question translation.
func NL2SQLSystemMessage() string {
	var b strings.Builder

	b.WriteString("You translate questions about a vehicle inspection and repair store into a single PostgreSQL SELECT query.\n\n")

	b.WriteString("If the question is answerable, respond with:\n")
	b.WriteString("- needs_clarification = false\n")
	b.WriteString("- sql = one SELECT statement\n")
	b.WriteString("- params = {} if there are no placeholders\n\n")

	b.WriteString("If the question is ambiguous, respond with:\n")
	b.WriteString("- needs_clarification = true\n")
	b.WriteString("- clarification_question = what you need to know\n")
	b.WriteString("- sql = null\n\n")

	b.WriteString("## Rules\n\n")
	b.WriteString("- Only SELECT queries. Never INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE, CREATE or GRANT.\n")
	b.WriteString("- Use only the tables listed in the context.\n")
	b.WriteString("- Never use :: casts.\n")
	b.WriteString("- Never use INTERVAL arithmetic or any other date math in SQL.\n")
	b.WriteString("- Filter dates with plain comparisons against named parameters:\n")
	b.WriteString("    column >= :start_date\n")
	b.WriteString("    column < :end_date\n")
	b.WriteString("- Compute every date in params as YYYY-MM-DD, relative to today.\n")
	b.WriteString("- Name aggregate columns after what they hold (count, total_cost, avg_confidence).\n\n")

	b.WriteString("## Date columns\n\n")
	b.WriteString("- damage_detections.detected_at for when damage was found.\n")
	b.WriteString("- repairs.created_at for when a repair was recorded.\n")
	b.WriteString("- vehicle_cards.created_at for when a vehicle was registered.\n")
	b.WriteString("- quotes.generated_at for when a quote was issued.\n\n")

	b.WriteString("## Response format\n\n")
	b.WriteString("Return STRICT JSON only. No markdown, no explanation:\n")
	b.WriteString("```json\n")
	b.WriteString(`{
  "needs_clarification": false,
  "clarification_question": null,
  "sql": "SELECT COUNT(*) AS count FROM damage_detections WHERE detected_at >= :start_date",
  "params": {"start_date": "2025-01-01"},
  "assumptions": ["'this year' means since January 1"],
  "normalized_terms": {"hood": "bonnet"}
}`)
	b.WriteString("\n```\n")

	return b.String()
}

// BuildNL2SQLPrompt creates the user message for one question.
func BuildNL2SQLPrompt(question string, tables []TableContext, today time.Time) string {
	var b strings.Builder

	b.WriteString("# Question\n\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Today is %s.\n\n", today.Format("2006-01-02"))

	b.WriteString("# Tables\n\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "## %s\n", t.Name)
		for _, c := range t.Columns {
			if c.DataType != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.DataType)
			} else {
				fmt.Fprintf(&b, "- %s\n", c.Name)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("# Vocabulary\n\n")
	b.WriteString("Panel names (informal -> stored value):\n")
	writeSynonyms(&b, PanelSynonyms)
	b.WriteString("\nSeverity (informal -> stored value):\n")
	writeSynonyms(&b, SeveritySynonyms)
	b.WriteString("\nReport every mapping you apply in normalized_terms.\n\n")

	b.WriteString("Respond with STRICT JSON only.\n")
	return b.String()
}

func writeSynonyms(b *strings.Builder, synonyms map[string]string) {
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %q -> %q\n", k, synonyms[k])
	}
}
