// Package store holds the sqlx-backed repositories for every persistent
// entity in the pipeline. All queries go through the shared PostgreSQL
// client's connection pool.
package store

import (
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/omraval18/nclip/shared/postgresql"
)

// Store bundles all repositories over one database handle.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Store on top of the shared PostgreSQL client.
func New(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}
