package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hero-arena/internal/domain"

	"github.com/rs/zerolog"
)

type RankingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRankingRepository(sqlDB *sql.DB, logger zerolog.Logger) *RankingRepository {
	return &RankingRepository{db: sqlDB, logger: logger}
}

func (r *RankingRepository) Get(ctx context.Context, userID, heroID string) (*domain.HeroRanking, error) {
	var ranking domain.HeroRanking
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, hero_id, games_played, score, last_game_id, updated_at
		 FROM hero_rankings WHERE user_id = ? AND hero_id = ?`, userID, heroID,
	).Scan(&ranking.UserID, &ranking.HeroID, &ranking.GamesPlayed, &ranking.Score, &ranking.LastGameID, &ranking.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get hero ranking: %v", domain.ErrPersistence, err)
	}
	return &ranking, nil
}

// Upsert creates the (user, hero) aggregate on first play and overwrites it
// afterwards. Callers hold the per-(user, hero) lock.
func (r *RankingRepository) Upsert(ctx context.Context, ranking domain.HeroRanking) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hero_rankings (user_id, hero_id, games_played, score, last_game_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, hero_id) DO UPDATE SET
		     games_played = excluded.games_played,
		     score = excluded.score,
		     last_game_id = excluded.last_game_id,
		     updated_at = excluded.updated_at`,
		ranking.UserID, ranking.HeroID, ranking.GamesPlayed, ranking.Score, ranking.LastGameID, ranking.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("user_id", ranking.UserID).
			Str("hero_id", ranking.HeroID).
			Msg("failed to upsert hero ranking")
		return fmt.Errorf("%w: upsert hero ranking: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *RankingRepository) ListByUser(ctx context.Context, userID string) ([]domain.HeroRanking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, hero_id, games_played, score, last_game_id, updated_at
		 FROM hero_rankings WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list hero rankings: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var rankings []domain.HeroRanking
	for rows.Next() {
		var ranking domain.HeroRanking
		if err := rows.Scan(&ranking.UserID, &ranking.HeroID, &ranking.GamesPlayed, &ranking.Score, &ranking.LastGameID, &ranking.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan hero ranking: %v", domain.ErrPersistence, err)
		}
		rankings = append(rankings, ranking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list hero rankings: %v", domain.ErrPersistence, err)
	}
	return rankings, nil
}
