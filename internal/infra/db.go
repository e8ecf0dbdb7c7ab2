// README: Postgres connection pool initialization; migrations applied on startup.
package infra

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/logger"
)

func NewDB(ctx context.Context, dsn string, log logger.ILogger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	if err := runMigrations(dsn, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres connected")
	return pool, nil
}

func runMigrations(dsn string, log logger.ILogger) error {
	cwd, _ := os.Getwd()
	mPath := filepath.Join(cwd, "migrations")

	m, err := migrate.New("file://"+mPath, dsn)
	if err != nil {
		log.Warn("migration init error or no migrations found", logger.Error(err))
		return nil
	}
	if err := m.Up(); err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info("no migrations to apply")
			return nil
		}
		return err
	}
	return nil
}
