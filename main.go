package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/clearquote-engine/pkg/audit"
	"github.com/ekaya-inc/clearquote-engine/pkg/cache"
	"github.com/ekaya-inc/clearquote-engine/pkg/config"
	"github.com/ekaya-inc/clearquote-engine/pkg/database"
	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
	"github.com/ekaya-inc/clearquote-engine/pkg/handlers"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/mcp"
	"github.com/ekaya-inc/clearquote-engine/pkg/mcp/tools"
	"github.com/ekaya-inc/clearquote-engine/pkg/middleware"
	"github.com/ekaya-inc/clearquote-engine/pkg/policy"
	"github.com/ekaya-inc/clearquote-engine/pkg/prompts"
	"github.com/ekaya-inc/clearquote-engine/pkg/retry"
	"github.com/ekaya-inc/clearquote-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("max_rows", cfg.Guardrail.MaxRows),
		zap.Int("statement_timeout_ms", cfg.Guardrail.StatementTimeoutMs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pol, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	guard, err := guardrail.New(pol, guardrail.Config{
		MaxRows:                cfg.Guardrail.MaxRows,
		StatementTimeout:       cfg.Guardrail.StatementTimeout(),
		RejectSuspiciousParams: cfg.Guardrail.RejectSuspiciousParams,
	})
	if err != nil {
		return fmt.Errorf("failed to create guardrail: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := migrate(cfg, logger); err != nil {
			return err
		}
	}

	adapter, err := datasource.NewAdapter(startCtx, cfg.Database.Type, cfg.Database.AdapterConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.Warn("Failed to close database adapter", zap.Error(err))
		}
	}()

	columnTypes := discoverColumnTypes(startCtx, cfg, pol, adapter, logger)
	tables := prompts.TablesFromAllowlist(pol.Tables(), columnTypes)

	client, err := llm.NewClientFromConfig(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  config.ResolveURLForDocker(cfg.LLM.BaseURL),
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout(),
	}, logger)
	if err != nil {
		return err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.LLM.MaxRetries
	translator := llm.NewTranslator(client, tables, llm.TranslatorConfig{
		Temperature: cfg.LLM.Temperature,
		Retry:       retryCfg,
	}, logger)

	redisClient, err := database.NewRedisClient(startCtx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process translation cache", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	translationCache := cache.NewTranslationCache(cache.NewStore(startCtx, redisClient), cfg.Redis.KeyPrefix, cfg.Redis.TTL(), logger)

	askService := services.NewAskService(services.AskConfig{
		Translator:    translator,
		Guard:         guard,
		Executor:      adapter,
		Cache:         translationCache,
		Auditor:       audit.NewSecurityAuditor(logger),
		FailureReason: postgres.FailureReason,
	}, logger)

	translatorState := func() string { return translator.CircuitState().String() }

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, adapter, translatorState, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(askService, logger).RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		toolLogger := mcp.NewToolCallLogger(logger)
		mcpServer := mcp.NewServer(handlers.ServiceName, cfg.Version, logger, toolLogger.Hooks())
		tools.RegisterAskTools(mcpServer.MCP(), &tools.AskToolDeps{AskService: askService, Logger: logger})
		tools.RegisterHealthTool(mcpServer.MCP(), &tools.HealthToolDeps{
			Version:         cfg.Version,
			DB:              adapter,
			TranslatorState: translatorState,
		})
		mux.Handle(cfg.MCP.Path, middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))
		logger.Info("MCP server enabled", zap.String("path", cfg.MCP.Path))
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestID(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Starting clearquote-engine",
		zap.String("addr", server.Addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func loadPolicy(cfg *config.Config) (*policy.AllowlistPolicy, error) {
	var opts []policy.Option
	if len(cfg.Guardrail.ForbiddenKinds) > 0 {
		opts = append(opts, policy.WithForbiddenKinds(cfg.Guardrail.ForbiddenKinds))
	}
	if len(cfg.Guardrail.ForbiddenFunctions) > 0 {
		opts = append(opts, policy.WithForbiddenFunctions(cfg.Guardrail.ForbiddenFunctions))
	}
	if len(cfg.Guardrail.AllowedSchemas) > 0 {
		opts = append(opts, policy.WithSchemas(cfg.Guardrail.AllowedSchemas))
	}

	if cfg.Guardrail.AllowlistPath == "" {
		pol, err := policy.New(policy.DomainTables(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to build allowlist: %w", err)
		}
		return pol, nil
	}

	pol, err := policy.LoadFile(cfg.Guardrail.AllowlistPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}
	return pol, nil
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// discoverColumnTypes reads the live schema for prompt column types and warns
// when the allowlist names tables or columns the database lacks. Failures are
// logged; the prompt then omits types.
func discoverColumnTypes(ctx context.Context, cfg *config.Config, pol *policy.AllowlistPolicy, discoverer datasource.SchemaDiscoverer, logger *zap.Logger) map[string]map[string]string {
	schemas := cfg.Guardrail.AllowedSchemas
	if len(schemas) == 0 {
		schemas = policy.DefaultSchemas
	}

	columns, err := discoverer.DiscoverColumns(ctx, schemas)
	if err != nil {
		logger.Warn("Schema discovery failed", zap.String("error", logging.SanitizeError(err)))
		return nil
	}

	if cfg.Guardrail.CheckSchemaDrift {
		drift := datasource.CompareAllowlist(pol.Tables(), columns)
		if !drift.Empty() {
			logger.Warn("Allowlist does not match database schema",
				zap.Strings("missing_tables", drift.MissingTables),
				zap.Any("missing_columns", drift.MissingColumns))
		}
	}

	types := make(map[string]map[string]string)
	for _, c := range columns {
		if types[c.TableName] == nil {
			types[c.TableName] = make(map[string]string)
		}
		types[c.TableName][c.ColumnName] = c.DataType
	}
	return types
}
