package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib" // драйвер "pgx" для database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Options - параметры пула соединений.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DBClient представляет клиент для работы с базой данных.
type DBClient struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewDBClient создает новый экземпляр DBClient и проверяет соединение.
func NewDBClient(ctx context.Context, dsn string, opts Options, log *logger.Logger) (*DBClient, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		log.Errorw("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DBClient{db: db, log: log}, nil
}

// DB возвращает *sqlx.DB для репозиториев.
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// PingContext используется health-check'ами.
func (dc *DBClient) PingContext(ctx context.Context) error {
	return dc.db.PingContext(ctx)
}

// Migrate накатывает встроенные goose-миграции.
func (dc *DBClient) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: dc.log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, dc.db.DB, "migrations"); err != nil {
		dc.log.Errorw("Database migration failed", "error", err)
		return fmt.Errorf("goose: migrate up: %w", err)
	}
	dc.log.Infow("Database migrations applied")
	return nil
}

// Close закрывает соединение с базой данных.
func (dc *DBClient) Close() error {
	if err := dc.db.Close(); err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// gooseLogger адаптирует наш логгер к goose.Logger.
type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info(format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Fatal(format, v...)
}
