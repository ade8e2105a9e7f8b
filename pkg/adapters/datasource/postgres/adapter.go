package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
)

// DefaultTimeoutGrace is added to the statement timeout to form the client
// side deadline, so the server-side timeout normally fires first.
const DefaultTimeoutGrace = 2 * time.Second

// Adapter provides PostgreSQL connectivity, read-only query execution and
// schema discovery over one pgx pool.
type Adapter struct {
	config    *Config
	pool      *pgxpool.Pool
	typeMap   *pgtype.Map
	grace     time.Duration
	ownedPool bool // true if we created the pool
	logger    *zap.Logger
}

// NewAdapter connects to PostgreSQL and returns an adapter that owns its pool.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	a := NewAdapterFromPool(pool, logger)
	a.config = cfg
	a.ownedPool = true
	return a, nil
}

// NewAdapterFromPool wraps an existing pool. The caller keeps ownership of the
// pool; Close does not close it.
func NewAdapterFromPool(pool *pgxpool.Pool, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		pool:    pool,
		typeMap: pgtype.NewMap(),
		grace:   DefaultTimeoutGrace,
		logger:  logger.Named("postgres"),
	}
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name, when the adapter was built from a Config
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if a.config != nil && !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the adapter (but NOT the pool if it was supplied by the caller).
func (a *Adapter) Close() error {
	if a.ownedPool && a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// typeName maps a PostgreSQL type OID to an upper-case type name.
func (a *Adapter) typeName(oid uint32) string {
	if t, ok := a.typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
