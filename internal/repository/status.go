package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hero-arena/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type StatusRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStatusRepository(sqlDB *sql.DB, logger zerolog.Logger) *StatusRepository {
	return &StatusRepository{db: sqlDB, logger: logger}
}

func (r *StatusRepository) Get(ctx context.Context, userID string) (*domain.MmrStatus, error) {
	var status domain.MmrStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, rating, games_played, last_updated FROM mmr_status WHERE user_id = ?`, userID,
	).Scan(&status.UserID, &status.Rating, &status.GamesPlayed, &status.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get mmr status: %v", domain.ErrPersistence, err)
	}
	return &status, nil
}

// Applied reports whether gameID has already been folded into the user's
// rating, i.e. whether its history row exists. Backed by a unique index on
// (user_id, game_id).
func (r *StatusRepository) Applied(ctx context.Context, userID, gameID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM mmr_history WHERE user_id = ? AND game_id = ?`, userID, gameID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: check mmr history: %v", domain.ErrPersistence, err)
	}
	return count > 0, nil
}

// Save writes the new status and its history row in one transaction. The
// upsert creates the row on a user's first game; callers hold the per-user
// lock, so the row read before Save cannot have moved underneath it.
func (r *StatusRepository) Save(ctx context.Context, status domain.MmrStatus, hist domain.MmrHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO mmr_status (user_id, rating, games_played, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     rating = excluded.rating,
		     games_played = excluded.games_played,
		     last_updated = excluded.last_updated`,
		status.UserID, status.Rating, status.GamesPlayed, status.LastUpdated,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", status.UserID).Msg("failed to upsert mmr status")
		return fmt.Errorf("%w: upsert mmr status: %v", domain.ErrPersistence, err)
	}

	if hist.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		hist.ID = id
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO mmr_history (id, user_id, game_id, rating_before, rating_after, delta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hist.ID, hist.UserID, hist.GameID, hist.RatingBefore, hist.RatingAfter, hist.Delta, hist.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", hist.UserID).Msg("failed to insert mmr history")
		return fmt.Errorf("%w: insert mmr history: %v", domain.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit mmr status: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *StatusRepository) HistoryFor(ctx context.Context, userID string, limit int) ([]domain.MmrHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, game_id, rating_before, rating_after, delta, created_at
		 FROM mmr_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list mmr history: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var records []domain.MmrHistory
	for rows.Next() {
		var h domain.MmrHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.GameID, &h.RatingBefore, &h.RatingAfter, &h.Delta, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan mmr history: %v", domain.ErrPersistence, err)
		}
		records = append(records, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list mmr history: %v", domain.ErrPersistence, err)
	}
	return records, nil
}
