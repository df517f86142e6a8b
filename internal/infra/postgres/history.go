package postgres

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// HistoryRepository records when songs were played.
// A nil repository or one without a database is a no-op.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository on db. db may be nil.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Enabled reports whether plays are actually stored.
func (r *HistoryRepository) Enabled() bool {
	return r != nil && r.db != nil
}

// RecordPlay stores one play of a song.
func (r *HistoryRepository) RecordPlay(ctx context.Context, songID int64, title string) error {
	if !r.Enabled() {
		return nil
	}
	if songID <= 0 {
		return errors.Newf("invalid song id %d", songID)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `INSERT INTO plays (song_id, title) VALUES ($1, $2);`
	if _, err := r.db.ExecContext(ctx, query, songID, title); err != nil {
		return errors.Wrapf(err, "failed to record play of song %d", songID)
	}
	return nil
}

// PlayCount returns how often a song was played.
func (r *HistoryRepository) PlayCount(ctx context.Context, songID int64) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `SELECT COUNT(*) FROM plays WHERE song_id = $1;`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, songID).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count plays of song %d", songID)
	}
	return count, nil
}

// Forget removes the history of a deleted song.
func (r *HistoryRepository) Forget(ctx context.Context, songID int64) error {
	if !r.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `DELETE FROM plays WHERE song_id = $1;`
	if _, err := r.db.ExecContext(ctx, query, songID); err != nil {
		return errors.Wrapf(err, "failed to forget song %d", songID)
	}
	return nil
}
