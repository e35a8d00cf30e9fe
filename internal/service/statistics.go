package service

import (
	"context"
	"time"

	"hero-arena/internal/constants"
	"hero-arena/internal/domain"
	"hero-arena/internal/lock"
	"hero-arena/internal/rating"

	"github.com/rs/zerolog"
)

// StatusStore is the persistence contract for per-user rating state.
type StatusStore interface {
	Get(ctx context.Context, userID string) (*domain.MmrStatus, error)
	Applied(ctx context.Context, userID, gameID string) (bool, error)
	Save(ctx context.Context, status domain.MmrStatus, hist domain.MmrHistory) error
	HistoryFor(ctx context.Context, userID string, limit int) ([]domain.MmrHistory, error)
}

// StatisticsService folds per-game performance values into each user's
// rating. Updates for the same user are serialized by a per-user lock, so
// two concurrent games can never both read the same prior rating.
type StatisticsService struct {
	repo   StatusStore
	model  rating.Model
	locks  *lock.Keyed
	logger zerolog.Logger
	now    func() time.Time
}

func NewStatisticsService(repo StatusStore, model rating.Model, logger zerolog.Logger) *StatisticsService {
	return &StatisticsService{
		repo:   repo,
		model:  model,
		locks:  lock.NewKeyed(),
		logger: logger,
		now:    time.Now,
	}
}

// Apply runs one read-modify-write rating update for userID. The status row
// springs into existence at the seed rating on the first game. Applying the
// same game twice is a no-op: updates are delivered at-least-once, so the
// fold must not double count.
func (s *StatisticsService) Apply(ctx context.Context, userID, gameID string, performance float64) (domain.MmrStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	unlock := s.locks.Lock(userID)
	defer unlock()

	applied, err := s.repo.Applied(ctx, userID, gameID)
	if err != nil {
		return domain.MmrStatus{}, err
	}
	if applied {
		s.logger.Debug().
			Str("user_id", userID).
			Str("game_id", gameID).
			Msg("rating update already applied, skipping")
		current, err := s.repo.Get(ctx, userID)
		if err != nil {
			return domain.MmrStatus{}, err
		}
		if current == nil {
			return domain.MmrStatus{UserID: userID, Rating: s.model.Seed()}, nil
		}
		return *current, nil
	}

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.MmrStatus{}, err
	}

	prior := s.model.Seed()
	gamesPlayed := 0
	if current != nil {
		prior = current.Rating
		gamesPlayed = current.GamesPlayed
	}

	delta, err := s.model.ComputeDelta(prior, performance)
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("game_id", gameID).
			Float64("performance", performance).
			Msg("rating model rejected performance value")
		return domain.MmrStatus{}, err
	}

	now := s.now()
	next := domain.MmrStatus{
		UserID:      userID,
		Rating:      prior + delta,
		GamesPlayed: gamesPlayed + 1,
		LastUpdated: now,
	}
	hist := domain.MmrHistory{
		UserID:       userID,
		GameID:       gameID,
		RatingBefore: prior,
		RatingAfter:  next.Rating,
		Delta:        delta,
		CreatedAt:    now,
	}

	if err := s.repo.Save(ctx, next, hist); err != nil {
		return domain.MmrStatus{}, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("game_id", gameID).
		Float64("delta", delta).
		Float64("rating", next.Rating).
		Int("games_played", next.GamesPlayed).
		Msg("rating updated")

	return next, nil
}

// Status returns the user's current rating, or the seed status if the user
// has not played yet. Never an error for a known user.
func (s *StatisticsService) Status(ctx context.Context, userID string) (domain.MmrStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.MmrStatus{}, err
	}
	if current == nil {
		return domain.MmrStatus{
			UserID:      userID,
			Rating:      s.model.Seed(),
			GamesPlayed: 0,
		}, nil
	}
	return *current, nil
}

func (s *StatisticsService) History(ctx context.Context, userID string) ([]domain.MmrHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.repo.HistoryFor(ctx, userID, constants.MmrHistoryLimit)
}
