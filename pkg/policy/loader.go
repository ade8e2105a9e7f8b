package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk allowlist format.
//
//	tables:
//	  vehicle_cards: [card_id, manufacturer]
//	forbidden_kinds: [Insert, Update, Delete]
//	forbidden_functions: [query_to_xml*, dblink*]
//	allowed_schemas: [public]
//
// yaml.v3 rejects duplicate mapping keys, which keeps table names unique.
type File struct {
	Tables             map[string][]string `yaml:"tables"`
	ForbiddenKinds     []string            `yaml:"forbidden_kinds"`
	ForbiddenFunctions []string            `yaml:"forbidden_functions"`
	AllowedSchemas     []string            `yaml:"allowed_schemas"`
}

// Parse decodes an allowlist document. Options are applied after the
// document's own settings, so callers can override forbidden kinds or schemas
// from configuration.
func Parse(data []byte, opts ...Option) (*AllowlistPolicy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode allowlist: %w", err)
	}

	var fileOpts []Option
	if len(f.ForbiddenKinds) > 0 {
		fileOpts = append(fileOpts, WithForbiddenKinds(f.ForbiddenKinds))
	}
	if len(f.ForbiddenFunctions) > 0 {
		fileOpts = append(fileOpts, WithForbiddenFunctions(f.ForbiddenFunctions))
	}
	if len(f.AllowedSchemas) > 0 {
		fileOpts = append(fileOpts, WithSchemas(f.AllowedSchemas))
	}

	return New(f.Tables, append(fileOpts, opts...)...)
}

// LoadFile reads an allowlist from path. An empty path yields the built-in
// domain allowlist.
func LoadFile(path string, opts ...Option) (*AllowlistPolicy, error) {
	if path == "" {
		return New(DomainTables(), opts...)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist %s: %w", path, err)
	}

	p, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid allowlist %s: %w", path, err)
	}
	return p, nil
}
