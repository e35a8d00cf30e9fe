package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"hero-arena/internal/constants"
	"hero-arena/internal/domain"
	"hero-arena/internal/lock"

	"github.com/rs/zerolog"
)

// RankingStore is the persistence contract for per-(user, hero) aggregates.
type RankingStore interface {
	Get(ctx context.Context, userID, heroID string) (*domain.HeroRanking, error)
	Upsert(ctx context.Context, ranking domain.HeroRanking) error
	ListByUser(ctx context.Context, userID string) ([]domain.HeroRanking, error)
}

// RankingService maintains the per-hero aggregates that partition a user's
// game history. Record is serialized per (user, hero) key; distinct keys
// never block each other.
type RankingService struct {
	repo   RankingStore
	locks  *lock.Keyed
	logger zerolog.Logger
	now    func() time.Time
}

func NewRankingService(repo RankingStore, logger zerolog.Logger) *RankingService {
	return &RankingService{
		repo:   repo,
		locks:  lock.NewKeyed(),
		logger: logger,
		now:    time.Now,
	}
}

func rankingKey(userID, heroID string) string {
	return userID + "\x00" + heroID
}

// Record folds one game's outcome value into the (user, hero) aggregate,
// creating it at zero on the hero's first play. Re-recording the game most
// recently folded in is a no-op, so at-least-once delivery cannot double
// count.
func (s *RankingService) Record(ctx context.Context, userID, heroID, gameID string, outcomeValue float64) (domain.HeroRanking, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	unlock := s.locks.Lock(rankingKey(userID, heroID))
	defer unlock()

	current, err := s.repo.Get(ctx, userID, heroID)
	if err != nil {
		return domain.HeroRanking{}, err
	}
	if current != nil && gameID != "" && current.LastGameID == gameID {
		s.logger.Debug().
			Str("user_id", userID).
			Str("hero_id", heroID).
			Str("game_id", gameID).
			Msg("ranking update already applied, skipping")
		return *current, nil
	}

	next := domain.HeroRanking{UserID: userID, HeroID: heroID}
	if current != nil {
		next = *current
	}
	next.GamesPlayed++
	next.Score += outcomeValue
	next.LastGameID = gameID
	next.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, next); err != nil {
		return domain.HeroRanking{}, err
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("hero_id", heroID).
		Int("games_played", next.GamesPlayed).
		Float64("score", next.Score).
		Msg("hero ranking updated")

	return next, nil
}

// RankingFor returns the user's heroes ordered by average score per game,
// descending. Ties go to the hero with more games played, then to the lower
// hero id, so the order is deterministic. The result is a snapshot of the
// writes committed before the query started.
func (s *RankingService) RankingFor(ctx context.Context, userID string) ([]domain.HeroRanking, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	rankings, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(rankings, func(a, b domain.HeroRanking) int {
		if c := cmp.Compare(b.Average(), a.Average()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.GamesPlayed, a.GamesPlayed); c != 0 {
			return c
		}
		return cmp.Compare(a.HeroID, b.HeroID)
	})

	return rankings, nil
}
