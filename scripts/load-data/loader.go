package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindNumeric
	kindBool
	kindDate
)

type column struct {
	name string
	kind columnKind
}

type tableSpec struct {
	name    string
	columns []column
}

// loadOrder lists tables parent first; truncation runs in reverse.
var loadOrder = []tableSpec{
	{name: "vehicle_cards", columns: []column{
		{"card_id", kindInt},
		{"vehicle_type", kindText},
		{"manufacturer", kindText},
		{"model", kindText},
		{"manufacture_year", kindInt},
		{"created_at", kindDate},
	}},
	{name: "damage_detections", columns: []column{
		{"damage_id", kindInt},
		{"card_id", kindInt},
		{"panel_name", kindText},
		{"damage_type", kindText},
		{"severity", kindText},
		{"confidence", kindNumeric},
		{"detected_at", kindDate},
	}},
	{name: "repairs", columns: []column{
		{"repair_id", kindInt},
		{"card_id", kindInt},
		{"panel_name", kindText},
		{"repair_action", kindText},
		{"repair_cost", kindNumeric},
		{"approved", kindBool},
		{"created_at", kindDate},
	}},
	{name: "quotes", columns: []column{
		{"quote_id", kindInt},
		{"card_id", kindInt},
		{"total_estimated_cost", kindNumeric},
		{"currency", kindText},
		{"generated_at", kindDate},
	}},
}

// batch is one table's parsed rows in header column order.
type batch struct {
	table   string
	columns []string
	rows    [][]any
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

func readDir(dir string) ([]batch, error) {
	batches := make([]batch, 0, len(loadOrder))
	for _, spec := range loadOrder {
		path := filepath.Join(dir, spec.name+".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		b, err := parseCSV(spec, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// parseCSV reads a header row followed by data rows. Header names must be
// columns of spec; columns left out fall back to their database defaults.
// Empty cells load as NULL.
func parseCSV(spec tableSpec, r io.Reader) (batch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return batch{}, errors.New("missing header row")
	}
	if err != nil {
		return batch{}, fmt.Errorf("failed to read header: %w", err)
	}

	kinds := make(map[string]columnKind, len(spec.columns))
	for _, c := range spec.columns {
		kinds[c.name] = c.kind
	}

	b := batch{table: spec.name, columns: make([]string, len(header))}
	headerKinds := make([]columnKind, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		kind, ok := kinds[name]
		if !ok {
			return batch{}, fmt.Errorf("unknown column %q for table %s", h, spec.name)
		}
		if seen[name] {
			return batch{}, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		b.columns[i] = name
		headerKinds[i] = kind
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch{}, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]any, len(record))
		for i, cell := range record {
			v, err := convert(headerKinds[i], cell)
			if err != nil {
				return batch{}, fmt.Errorf("line %d, column %s: %w", line, b.columns[i], err)
			}
			row[i] = v
		}
		b.rows = append(b.rows, row)
	}
	return b, nil
}

func convert(kind columnKind, cell string) (any, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}

	switch kind {
	case kindInt:
		// Spreadsheet exports write integers as "2019.0".
		cell = strings.TrimSuffix(cell, ".0")
		return strconv.ParseInt(cell, 10, 64)
	case kindNumeric:
		var n pgtype.Numeric
		if err := n.Scan(cell); err != nil {
			return nil, fmt.Errorf("invalid number %q", cell)
		}
		return n, nil
	case kindBool:
		switch strings.ToLower(cell) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		return strconv.ParseBool(cell)
	case kindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, cell); err == nil {
				return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}, nil
			}
		}
		return nil, fmt.Errorf("invalid date %q", cell)
	default:
		return cell, nil
	}
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// load truncates (optionally) and copies every batch in one transaction.
func load(ctx context.Context, db txBeginner, batches []batch, truncate bool) (map[string]int64, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if truncate {
		if _, err := tx.Exec(ctx, truncateStatement()); err != nil {
			return nil, fmt.Errorf("failed to truncate tables: %w", err)
		}
	}

	counts := make(map[string]int64, len(batches))
	for _, b := range batches {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{b.table}, b.columns, pgx.CopyFromRows(b.rows))
		if err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", b.table, err)
		}
		counts[b.table] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return counts, nil
}

// truncateStatement lists child tables before their parents.
func truncateStatement() string {
	names := make([]string, 0, len(loadOrder))
	for i := len(loadOrder) - 1; i >= 0; i-- {
		names = append(names, pgx.Identifier{loadOrder[i].name}.Sanitize())
	}
	return "TRUNCATE TABLE " + strings.Join(names, ", ") + " RESTART IDENTITY CASCADE"
}
