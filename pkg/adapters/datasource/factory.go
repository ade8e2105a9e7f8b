package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewAdapter creates an adapter of the given type from the registry.
// The adapter package must be linked in (blank import) for its type to be
// registered.
func NewAdapter(ctx context.Context, dsType string, config map[string]any, logger *zap.Logger) (Adapter, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return factory(ctx, config, logger)
}
