package sql

/*
Placeholder Syntax

# Overview

Queries produced by the translator mark runtime values with named placeholders:

	:name

A placeholder is a colon followed by an identifier that starts with a letter or underscore and
continues with letters, digits or underscores ([A-Za-z_][A-Za-z0-9_]*). Values are supplied
separately as a name -> value mapping and are always bound by the driver, never interpolated.

# What is not a placeholder

The scanner tracks PostgreSQL lexical context, so the following are ignored:

	created_at::date          -- the :: cast operator
	'10:30'                   -- colons inside string literals (including E'' strings)
	"odd:column"              -- quoted identifiers
	$$ :x $$, $fn$ :x $fn$    -- dollar-quoted bodies
	-- :x                      -- line comments, and block comments (which may nest)

# Examples

	SELECT COUNT(*) AS count
	FROM repairs
	WHERE created_at >= :start_date
	  AND created_at < :end_date

	SELECT panel_name, SUM(repair_cost) AS total_cost
	FROM repairs
	WHERE card_id = :card_id OR :card_id IS NULL
	GROUP BY panel_name

# Pipeline

A candidate query moves through the guardrail in a fixed order:

 1. StripComments removes comments with the PostgreSQL scanner.
 2. Parse rewrites :name to $N (ToPositional) and parses with the PostgreSQL grammar.
 3. Validate enforces the single-SELECT root, the forbidden kind and function scan and the
    table allowlist.
 4. EnforceLimit appends LIMIT <max_rows> unless the statement already ends in LIMIT or FETCH
    FIRST (optionally followed by OFFSET, which may itself be a placeholder).
 5. CheckBindings reports every placeholder that has no supplied value.
 6. ToPositional and BindArgs produce the $N text and ordered arguments handed to the executor.

The LIMIT appended in step 4 is a literal, so it never adds a placeholder for step 5.

# Positional rewrite

	SELECT * FROM repairs WHERE card_id = :card_id AND panel_name = :panel OR :card_id IS NULL

becomes

	SELECT * FROM repairs WHERE card_id = $1 AND panel_name = $2 OR $1 IS NULL

with names [card_id, panel]. A repeated name reuses its first position.

# Parameter screening

String values are also run through libinjection (ScanParameters). Findings are written to the
security audit log; with guardrail.reject_suspicious_params enabled the query is rejected.
*/
