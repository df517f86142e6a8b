// Package postgres stores play history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	zlog "github.com/rs/zerolog/log"
)

const (
	connectTimeout = 5 * time.Second
	queryTimeout   = 2 * time.Second
)

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS plays (
		id BIGSERIAL PRIMARY KEY,
		song_id BIGINT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		played_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`,
	`CREATE INDEX IF NOT EXISTS plays_song_id_idx ON plays (song_id);`,
}

// Open connects to the database at url and applies migrations.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	zlog.Info().Msg("database connection established")
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", m)
		}
	}
	zlog.Debug().Msgf("database migrations completed (%d)", len(migrations))
	return nil
}
