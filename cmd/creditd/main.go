package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Cyber1009/Interview-backend/internal/apiserver"
	"github.com/Cyber1009/Interview-backend/internal/billing"
	"github.com/Cyber1009/Interview-backend/internal/store/gormstore"
	"github.com/Cyber1009/Interview-backend/internal/store/migrations"
	"github.com/Cyber1009/Interview-backend/internal/store/pgstore"
	"github.com/Cyber1009/Interview-backend/pkg/credit"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagTokenSigningKey = "token-signing-key"
	flagTokenIssuer     = "token-issuer"
	flagStoreBackend    = "store-backend"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyTokenSigningKey = "token_signing_key"
	configKeyTokenIssuer     = "token_issuer"
	configKeyStoreBackend    = "store_backend"

	defaultDatabaseURL = "sqlite:///tmp/interview-credits.db"
	defaultListenAddr  = ":8080"

	backendPgx  = "pgx"
	backendGorm = "gorm"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	AllowedOrigins  string
	TokenSigningKey string
	TokenIssuer     string
	StoreBackend    string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "creditd",
		Short:         "Interview credit accounting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-separated CORS origins")
	cmd.Flags().String(flagTokenSigningKey, "", "HS256 signing key for bearer tokens")
	cmd.Flags().String(flagTokenIssuer, "", "Expected token issuer")
	cmd.Flags().String(flagStoreBackend, backendPgx, "Store backend for postgres DSNs (pgx or gorm)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]struct {
		env  string
		flag string
	}{
		configKeyDatabaseURL:     {env: "DATABASE_URL", flag: flagDatabaseURL},
		configKeyListenAddr:      {env: "LISTEN_ADDR", flag: flagListenAddr},
		configKeyAllowedOrigins:  {env: "ALLOWED_ORIGINS", flag: flagAllowedOrigins},
		configKeyTokenSigningKey: {env: "TOKEN_SIGNING_KEY", flag: flagTokenSigningKey},
		configKeyTokenIssuer:     {env: "TOKEN_ISSUER", flag: flagTokenIssuer},
		configKeyStoreBackend:    {env: "STORE_BACKEND", flag: flagStoreBackend},
	}
	for key, binding := range bindings {
		if err := viper.BindEnv(key, binding.env); err != nil {
			return err
		}
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(binding.flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.StoreBackend = viper.GetString(configKeyStoreBackend)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = backendPgx
	}
	if cfg.StoreBackend != backendPgx && cfg.StoreBackend != backendGorm {
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer func() { _ = cleanup() }()

	clock := func() int64 { return time.Now().UTC().Unix() }
	engine, err := credit.NewService(store, clock, credit.WithOperationLogger(&zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("credit service init: %w", err)
	}
	biller, err := billing.NewService(engine)
	if err != nil {
		return fmt.Errorf("billing service init: %w", err)
	}

	server, err := apiserver.NewServer(apiserver.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  apiserver.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}, logger, engine, biller)
	if err != nil {
		return fmt.Errorf("api server init: %w", err)
	}
	return server.Run(ctx)
}

func openStore(ctx context.Context, cfg *runtimeConfig) (credit.Store, func() error, error) {
	if isPostgresDSN(cfg.DatabaseURL) {
		if cfg.StoreBackend == backendGorm {
			return openPostgresGorm(ctx, cfg.DatabaseURL)
		}
		return openPostgresPgx(ctx, cfg.DatabaseURL)
	}
	return openSQLite(ctx, cfg.DatabaseURL)
}

func openPostgresPgx(ctx context.Context, dsn string) (credit.Store, func() error, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	migrationDB := stdlib.OpenDBFromPool(pool)
	if err := migrations.Run(migrationDB); err != nil {
		_ = migrationDB.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	if err := migrationDB.Close(); err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() error {
		pool.Close()
		return nil
	}
	return pgstore.New(pool), cleanup, nil
}

func openPostgresGorm(ctx context.Context, dsn string) (credit.Store, func() error, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Run(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return gormstore.New(db.WithContext(ctx)), func() error { return sqlDB.Close() }, nil
}

func openSQLite(ctx context.Context, dsn string) (credit.Store, func() error, error) {
	path, err := resolveSQLitePath(dsn)
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := gormstore.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	var sqlDB *sql.DB
	sqlDB, err = db.DB()
	if err != nil {
		return nil, nil, err
	}
	return gormstore.New(db.WithContext(ctx)), func() error { return sqlDB.Close() }, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveSQLitePath(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "interview-credits.db"
		}
		return normalizeSQLitePath(path)
	}
	// Treat everything else as a direct sqlite path.
	return normalizeSQLitePath(dsn)
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// zapOperationLogger bridges the engine's operation log to zap. Consume
// outcomes arrive as statuses, so an insufficient balance logs at info.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (oplog *zapOperationLogger) LogOperation(_ context.Context, entry credit.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
		zap.Int64("amount", entry.Amount),
	}
	if entry.EventID.String() != "" {
		fields = append(fields, zap.String("event_id", entry.EventID.String()))
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", string(entry.Kind)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		oplog.logger.Error("credit operation", fields...)
		return
	}
	oplog.logger.Info("credit operation", fields...)
}
