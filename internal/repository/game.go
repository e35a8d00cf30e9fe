package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hero-arena/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// GameRepository owns the append-only game history. There is deliberately no
// UPDATE path: a game's mmr value is computed once and never rewritten.
type GameRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGameRepository(sqlDB *sql.DB, logger zerolog.Logger) *GameRepository {
	return &GameRepository{db: sqlDB, logger: logger}
}

func (r *GameRepository) Insert(ctx context.Context, game *domain.Game) error {
	if game.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		game.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, user_id, hero_id, opponent_composition_id, outcome, score, mmr, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.UserID, game.HeroID, game.OpponentCompositionID,
		string(game.Outcome), game.Score, game.Mmr, game.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", game.UserID).Msg("failed to insert game")
		return fmt.Errorf("%w: insert game: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *GameRepository) GetByID(ctx context.Context, id string) (*domain.Game, error) {
	var game domain.Game
	var outcome string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, hero_id, opponent_composition_id, outcome, score, mmr, created_at
		 FROM games WHERE id = ?`, id,
	).Scan(&game.ID, &game.UserID, &game.HeroID, &game.OpponentCompositionID,
		&outcome, &game.Score, &game.Mmr, &game.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get game: %v", domain.ErrPersistence, err)
	}
	game.Outcome = domain.Outcome(outcome)
	return &game, nil
}

func (r *GameRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, hero_id, opponent_composition_id, outcome, score, mmr, created_at
		 FROM games WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list games: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		var game domain.Game
		var outcome string
		if err := rows.Scan(&game.ID, &game.UserID, &game.HeroID, &game.OpponentCompositionID,
			&outcome, &game.Score, &game.Mmr, &game.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan game: %v", domain.ErrPersistence, err)
		}
		game.Outcome = domain.Outcome(outcome)
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list games: %v", domain.ErrPersistence, err)
	}
	return games, nil
}

// ListUnapplied returns committed games with no rating history row, oldest
// first. These are games whose post-commit statistics update never stuck; the
// retry worker replays them. The cutoff excludes games whose first update is
// still in flight.
func (r *GameRepository) ListUnapplied(ctx context.Context, cutoff time.Time, limit int) ([]domain.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.user_id, g.hero_id, g.opponent_composition_id, g.outcome, g.score, g.mmr, g.created_at
		 FROM games g
		 LEFT JOIN mmr_history h ON h.game_id = g.id
		 WHERE h.id IS NULL AND g.created_at < ?
		 ORDER BY g.created_at
		 LIMIT ?`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list unapplied games: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		var game domain.Game
		var outcome string
		if err := rows.Scan(&game.ID, &game.UserID, &game.HeroID, &game.OpponentCompositionID,
			&outcome, &game.Score, &game.Mmr, &game.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan game: %v", domain.ErrPersistence, err)
		}
		game.Outcome = domain.Outcome(outcome)
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list unapplied games: %v", domain.ErrPersistence, err)
	}
	return games, nil
}

// CountByUser backs the consistency check that games_played counters stay in
// step with the raw history.
func (r *GameRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM games WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count games: %v", domain.ErrPersistence, err)
	}
	return count, nil
}
