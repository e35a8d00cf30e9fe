package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"hero-arena/internal/constants"
	"hero-arena/internal/domain"

	"github.com/rs/zerolog"
)

// GameStore is the persistence contract for the append-only game history.
type GameStore interface {
	Insert(ctx context.Context, game *domain.Game) error
	GetByID(ctx context.Context, id string) (*domain.Game, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Game, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// UserDirectory confirms user ids against the identity component.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Catalog answers hero/composition lookups from the immutable reference data.
type Catalog interface {
	Hero(id string) (domain.Hero, bool)
	Composition(id string) (domain.Composition, bool)
	CompositionStrength(id string) float64
}

// StatisticsUpdater applies a committed game's rating and ranking updates,
// and queues games whose update failed for background retry.
type StatisticsUpdater interface {
	Apply(ctx context.Context, game domain.Game) error
	Enqueue(game domain.Game)
}

type Submission struct {
	HeroID                string
	OpponentCompositionID string
	Outcome               domain.Outcome
	Score                 float64
}

// GameService is the orchestration point: it validates a submission, computes
// the game's performance value, commits the immutable game record, and then
// applies the rating and ranking updates. The commit and the updates are
// deliberately asymmetric: a committed game survives a failed update.
type GameService struct {
	games   GameStore
	users   UserDirectory
	catalog Catalog
	stats   StatisticsUpdater
	logger  zerolog.Logger
	now     func() time.Time
}

func NewGameService(games GameStore, users UserDirectory, catalog Catalog, stats StatisticsUpdater, logger zerolog.Logger) *GameService {
	return &GameService{
		games:   games,
		users:   users,
		catalog: catalog,
		stats:   stats,
		logger:  logger,
		now:     time.Now,
	}
}

// SubmitGame records one played game for userID.
//
// On a statistics failure after the game has committed, the saved game is
// returned together with domain.ErrStatisticsUpdate and the update is queued
// for at-least-once retry; the caller sees lagging aggregates, not a lost
// game.
func (s *GameService) SubmitGame(ctx context.Context, userID string, sub Submission) (domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return domain.Game{}, err
	}
	if !exists {
		return domain.Game{}, fmt.Errorf("%w: %s", domain.ErrUnknownUser, userID)
	}

	if err := s.validate(sub); err != nil {
		return domain.Game{}, err
	}

	performance := performanceValue(sub.Outcome, sub.Score, s.catalog.CompositionStrength(sub.OpponentCompositionID))

	game := domain.Game{
		UserID:                userID,
		HeroID:                sub.HeroID,
		OpponentCompositionID: sub.OpponentCompositionID,
		Outcome:               sub.Outcome,
		Score:                 sub.Score,
		Mmr:                   performance,
		CreatedAt:             s.now(),
	}

	if err := s.games.Insert(ctx, &game); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to persist game")
		return domain.Game{}, err
	}

	// The game is committed; the update must not die with the request.
	updateCtx := context.WithoutCancel(ctx)
	if err := s.stats.Apply(updateCtx, game); err != nil {
		s.logger.Warn().Err(err).
			Str("game_id", game.ID).
			Str("user_id", userID).
			Msg("statistics update failed after game commit, queueing retry")
		s.stats.Enqueue(game)
		return game, fmt.Errorf("game %s committed: %w", game.ID, domain.ErrStatisticsUpdate)
	}

	s.logger.Info().
		Str("game_id", game.ID).
		Str("user_id", userID).
		Str("hero_id", game.HeroID).
		Float64("mmr", game.Mmr).
		Msg("game recorded")

	return game, nil
}

func (s *GameService) History(ctx context.Context, userID string) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.games.ListByUser(ctx, userID, constants.GameHistoryLimit)
}

func (s *GameService) validate(sub Submission) error {
	if _, ok := s.catalog.Hero(sub.HeroID); !ok {
		return fmt.Errorf("%w: unknown hero %q", domain.ErrInvalidSubmission, sub.HeroID)
	}
	if _, ok := s.catalog.Composition(sub.OpponentCompositionID); !ok {
		return fmt.Errorf("%w: unknown composition %q", domain.ErrInvalidSubmission, sub.OpponentCompositionID)
	}
	if !sub.Outcome.Valid() {
		return fmt.Errorf("%w: outcome %q", domain.ErrInvalidSubmission, sub.Outcome)
	}
	if math.IsNaN(sub.Score) || math.IsInf(sub.Score, 0) || sub.Score < 0 || sub.Score > 1 {
		return fmt.Errorf("%w: score %v out of [0, 1]", domain.ErrInvalidSubmission, sub.Score)
	}
	return nil
}

// performanceValue maps an outcome to [0, 1], weighted by the opposing
// composition's strength: a win over a strong composition counts for more,
// a loss to one counts against less. The personal score nudges the result.
func performanceValue(outcome domain.Outcome, score, oppStrength float64) float64 {
	var result float64
	if outcome == domain.OutcomeWin {
		result = 0.5 + 0.5*oppStrength
	} else {
		result = 0.4 * oppStrength
	}
	return clamp01(0.8*result + 0.2*score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
