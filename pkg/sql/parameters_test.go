package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
)

func TestExtractPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "no placeholders",
			sql:      "SELECT * FROM vehicle_cards",
			expected: nil,
		},
		{
			name:     "single placeholder",
			sql:      "SELECT * FROM repairs WHERE created_at >= :start_date",
			expected: []string{"start_date"},
		},
		{
			name:     "order of first appearance",
			sql:      "SELECT * FROM repairs WHERE created_at < :end_date AND created_at >= :start_date",
			expected: []string{"end_date", "start_date"},
		},
		{
			name:     "duplicates appear once",
			sql:      "SELECT * FROM repairs WHERE card_id = :card_id OR :card_id IS NULL",
			expected: []string{"card_id"},
		},
		{
			name:     "cast operator ignored",
			sql:      "SELECT repair_cost::numeric FROM repairs WHERE panel_name = :panel",
			expected: []string{"panel"},
		},
		{
			name:     "cast directly after placeholder",
			sql:      "SELECT * FROM repairs WHERE created_at >= :start_date::date",
			expected: []string{"start_date"},
		},
		{
			name:     "colon in string literal",
			sql:      "SELECT '10:30 :not_a_param' AS t FROM repairs WHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "doubled quote inside literal",
			sql:      "SELECT 'it''s :x' FROM repairs WHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "escape string with backslash quote",
			sql:      `SELECT E'a\' :x' FROM repairs WHERE card_id = :card_id`,
			expected: []string{"card_id"},
		},
		{
			name:     "quoted identifier",
			sql:      `SELECT "odd:col" FROM repairs WHERE card_id = :card_id`,
			expected: []string{"card_id"},
		},
		{
			name:     "line comment",
			sql:      "SELECT * FROM repairs -- filter by :ignored\nWHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "nested block comment",
			sql:      "SELECT * FROM repairs /* outer /* :inner */ :still_comment */ WHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "dollar quoted body",
			sql:      "SELECT $$ :x $$, $tag$ :y $tag$ FROM repairs WHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "positional parameter is not a dollar quote",
			sql:      "SELECT * FROM repairs WHERE card_id = $1 AND panel_name = :panel",
			expected: []string{"panel"},
		},
		{
			name:     "colon followed by digit",
			sql:      "SELECT arr[1:2] FROM repairs WHERE card_id = :card_id",
			expected: []string{"card_id"},
		},
		{
			name:     "placeholder at end of text",
			sql:      "SELECT * FROM quotes WHERE currency = :currency",
			expected: []string{"currency"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractPlaceholders(tt.sql))
		})
	}
}

func TestCheckBindings(t *testing.T) {
	t.Run("missing start_date", func(t *testing.T) {
		err := CheckBindings("SELECT * FROM repairs WHERE created_at >= :start_date", map[string]any{})

		var missing *apperrors.MissingParameterError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"start_date"}, missing.Names)
	})

	t.Run("nil params", func(t *testing.T) {
		err := CheckBindings("SELECT * FROM repairs WHERE created_at >= :start_date", nil)
		require.Error(t, err)
	})

	t.Run("all missing names reported sorted", func(t *testing.T) {
		err := CheckBindings(
			"SELECT * FROM repairs WHERE created_at < :end_date AND created_at >= :start_date AND card_id = :card_id",
			map[string]any{"card_id": 7},
		)

		var missing *apperrors.MissingParameterError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"end_date", "start_date"}, missing.Names)
	})

	t.Run("all bound", func(t *testing.T) {
		err := CheckBindings(
			"SELECT * FROM repairs WHERE created_at >= :start_date",
			map[string]any{"start_date": "2025-01-01"},
		)
		assert.NoError(t, err)
	})

	t.Run("nil value counts as bound", func(t *testing.T) {
		err := CheckBindings("SELECT * FROM repairs WHERE card_id = :card_id", map[string]any{"card_id": nil})
		assert.NoError(t, err)
	})

	t.Run("extra params are fine", func(t *testing.T) {
		err := CheckBindings("SELECT * FROM repairs", map[string]any{"unused": 1})
		assert.NoError(t, err)
	})

	t.Run("injected limit adds no placeholder", func(t *testing.T) {
		limited := EnforceLimit("SELECT * FROM repairs WHERE card_id = :card_id", 200)
		err := CheckBindings(limited, map[string]any{"card_id": 1})
		assert.NoError(t, err)
	})
}

func TestToPositional(t *testing.T) {
	tests := []struct {
		name          string
		sql           string
		expectedSQL   string
		expectedNames []string
	}{
		{
			name:          "no placeholders",
			sql:           "SELECT * FROM quotes",
			expectedSQL:   "SELECT * FROM quotes",
			expectedNames: nil,
		},
		{
			name:          "two placeholders",
			sql:           "SELECT * FROM repairs WHERE created_at >= :start_date AND created_at < :end_date",
			expectedSQL:   "SELECT * FROM repairs WHERE created_at >= $1 AND created_at < $2",
			expectedNames: []string{"start_date", "end_date"},
		},
		{
			name:          "repeated name reuses position",
			sql:           "SELECT * FROM repairs WHERE card_id = :card_id AND panel_name = :panel OR :card_id IS NULL",
			expectedSQL:   "SELECT * FROM repairs WHERE card_id = $1 AND panel_name = $2 OR $1 IS NULL",
			expectedNames: []string{"card_id", "panel"},
		},
		{
			name:          "casts and literals untouched",
			sql:           "SELECT '12:00'::time FROM repairs WHERE created_at >= :start_date::date",
			expectedSQL:   "SELECT '12:00'::time FROM repairs WHERE created_at >= $1::date",
			expectedNames: []string{"start_date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, names := ToPositional(tt.sql)
			assert.Equal(t, tt.expectedSQL, sql)
			assert.Equal(t, tt.expectedNames, names)
		})
	}
}

func TestBindArgs(t *testing.T) {
	args, err := BindArgs([]string{"card_id", "panel"}, map[string]any{"panel": "hood", "card_id": 12, "extra": true})
	require.NoError(t, err)
	assert.Equal(t, []any{12, "hood"}, args)

	_, err = BindArgs([]string{"card_id"}, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card_id")

	args, err = BindArgs(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, args)
}
