package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsEmptyPolicy(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmptyPolicy)

	_, err = New(map[string][]string{})
	require.ErrorIs(t, err, ErrEmptyPolicy)
}

func TestNew_RejectsBlankTableName(t *testing.T) {
	_, err := New(map[string][]string{"  ": {"id"}})
	require.Error(t, err)
}

func TestNew_RejectsDuplicateAfterTrim(t *testing.T) {
	_, err := New(map[string][]string{"repairs": nil, " repairs ": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestNew_RejectsEmptyForbiddenSet(t *testing.T) {
	_, err := New(map[string][]string{"repairs": nil}, WithForbiddenKinds(nil))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	p := Default()

	assert.Equal(t, []string{"damage_detections", "quotes", "repairs", "vehicle_cards"}, p.TableNames())
	assert.True(t, p.HasTable("vehicle_cards"))
	assert.False(t, p.HasTable("users"))
	assert.False(t, p.HasTable("Vehicle_Cards"), "table names are compared exactly")

	assert.Equal(t, []string{"card_id", "currency", "generated_at", "quote_id", "total_estimated_cost"}, p.Columns("quotes"))
	assert.Nil(t, p.Columns("users"))

	for _, kind := range []string{"Insert", "Update", "Delete", "Create", "Drop", "Alter", "Merge"} {
		assert.True(t, p.IsForbidden(kind), kind)
	}
	assert.False(t, p.IsForbidden("Select"))
	assert.False(t, p.IsForbidden(""))

	assert.True(t, p.AllowsSchema(""))
	assert.True(t, p.AllowsSchema("public"))
	assert.False(t, p.AllowsSchema("pg_catalog"))
}

func TestIsForbiddenFunction(t *testing.T) {
	p := Default()

	tests := []struct {
		name string
		want bool
	}{
		{"query_to_xml", true},
		{"query_to_xmlschema", true},
		{"DBLINK_EXEC", true},
		{"pg_read_file", true},
		{"pg_read_file_old", false},
		{"lo_export", true},
		{" set_config ", true},
		{"current_setting", false},
		{"count", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsForbiddenFunction(tt.name))
		})
	}
}

func TestWithForbiddenFunctions(t *testing.T) {
	p, err := New(map[string][]string{"repairs": nil}, WithForbiddenFunctions([]string{"Upper", "my_*", " ", "*"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"my_*", "upper"}, p.ForbiddenFunctions())
	assert.True(t, p.IsForbiddenFunction("UPPER"))
	assert.True(t, p.IsForbiddenFunction("my_func"))
	assert.False(t, p.IsForbiddenFunction("query_to_xml"))

	fns := p.ForbiddenFunctions()
	fns[0] = "mutated"
	assert.Equal(t, []string{"my_*", "upper"}, p.ForbiddenFunctions())

	unrestricted, err := New(map[string][]string{"repairs": nil}, WithForbiddenFunctions(nil))
	require.NoError(t, err)
	assert.Empty(t, unrestricted.ForbiddenFunctions())
	assert.False(t, unrestricted.IsForbiddenFunction("dblink"))
}

func TestAccessorsReturnCopies(t *testing.T) {
	p := Default()

	tables := p.Tables()
	tables["users"] = []string{"password"}
	delete(tables, "repairs")

	assert.False(t, p.HasTable("users"))
	assert.True(t, p.HasTable("repairs"))

	cols := p.Columns("repairs")
	cols[0] = "mutated"
	assert.NotEqual(t, "mutated", p.Columns("repairs")[0])
}

func TestParse(t *testing.T) {
	doc := `
tables:
  orders: [id, total]
  customers: [id, name]
forbidden_kinds: [Insert, Drop]
forbidden_functions: [pg_sleep, xml*]
allowed_schemas: [sales]
`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders"}, p.TableNames())
	assert.Equal(t, []string{"id", "total"}, p.Columns("orders"))
	assert.Equal(t, []string{"Drop", "Insert"}, p.ForbiddenKinds())
	assert.Equal(t, []string{"pg_sleep", "xml*"}, p.ForbiddenFunctions())
	assert.True(t, p.AllowsSchema("sales"))
	assert.False(t, p.AllowsSchema("public"))
}

func TestParse_OptionsOverrideDocument(t *testing.T) {
	doc := `
tables:
  orders: [id]
forbidden_kinds: [Insert]
`
	p, err := Parse([]byte(doc), WithForbiddenKinds([]string{"Update"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Update"}, p.ForbiddenKinds())
}

func TestParse_DuplicateTableKey(t *testing.T) {
	doc := `
tables:
  orders: [id]
  orders: [total]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
}

func TestParse_EmptyTables(t *testing.T) {
	_, err := Parse([]byte("tables: {}\n"))
	require.ErrorIs(t, err, ErrEmptyPolicy)
}

func TestLoadFile(t *testing.T) {
	t.Run("empty path uses domain allowlist", func(t *testing.T) {
		p, err := LoadFile("")
		require.NoError(t, err)
		assert.Len(t, p.TableNames(), 4)
	})

	t.Run("reads yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "allowlist.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tables:\n  repairs: [repair_id]\n"), 0o644))

		p, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"repairs"}, p.TableNames())
		assert.ElementsMatch(t, DefaultForbiddenKinds, p.ForbiddenKinds())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}
