// Package db provides schema migration, embedding profile management and the
// LISTEN/NOTIFY bridge.
//
// Migrations use goose (github.com/pressly/goose/v3). Files live in
// internal/db/migrations/ and are embedded via //go:embed; up and down
// sections share a file (-- +goose Up / -- +goose Down).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/dbpool"
)

// RunMigrations applies all pending migrations from the provided filesystem.
func RunMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) error {
	provider, closeDB, err := newProvider(pool, fsys)
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("all migrations already applied")
	}

	return nil
}

// MigrationStatus reports the applied database version and the newest
// embedded version.
func MigrationStatus(ctx context.Context, pool *dbpool.Pool, fsys fs.FS) (current, latest int64, err error) {
	provider, closeDB, err := newProvider(pool, fsys)
	if err != nil {
		return 0, 0, err
	}
	defer closeDB()

	current, err = provider.GetDBVersion(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading database version: %w", err)
	}

	sources := provider.ListSources()
	if len(sources) > 0 {
		latest = sources[len(sources)-1].Version
	}

	return current, latest, nil
}

// newProvider opens a database/sql handle over the pool's connection string,
// since goose requires *sql.DB.
func newProvider(pool *dbpool.Pool, fsys fs.FS) (*goose.Provider, func(), error) {
	sqlDB, err := sql.Open("pgx", pool.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("opening sql.DB for migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		sqlDB.Close()

		return nil, nil, fmt.Errorf("creating goose provider: %w", err)
	}

	return provider, func() { sqlDB.Close() }, nil
}
