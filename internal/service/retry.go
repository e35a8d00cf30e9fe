package service

import (
	"context"
	"time"

	"hero-arena/internal/constants"
	"hero-arena/internal/domain"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/fx"
)

type ratingApplier interface {
	Apply(ctx context.Context, userID, gameID string, performance float64) (domain.MmrStatus, error)
}

type rankingRecorder interface {
	Record(ctx context.Context, userID, heroID, gameID string, outcomeValue float64) (domain.HeroRanking, error)
}

// PendingGames lists committed games whose statistics update never stuck.
type PendingGames interface {
	ListUnapplied(ctx context.Context, cutoff time.Time, limit int) ([]domain.Game, error)
}

// StatsRetrier applies a committed game's rating and ranking updates, and
// re-applies failed ones until they stick. Delivery is at-least-once from two
// sources: an in-memory queue for updates that failed in-request, and a
// periodic sweep over games with no rating history row, which survives
// restarts and a full queue. Both update steps skip work already applied for
// the game, so re-delivery cannot double count.
type StatsRetrier struct {
	stats    ratingApplier
	rankings rankingRecorder
	pending  PendingGames
	queue    chan domain.Game
	stop     chan struct{}
	done     chan struct{}
	logger   zerolog.Logger
}

func NewStatsRetrier(lc fx.Lifecycle, stats *StatisticsService, rankings *RankingService, pending PendingGames, logger zerolog.Logger) *StatsRetrier {
	r := &StatsRetrier{
		stats:    stats,
		rankings: rankings,
		pending:  pending,
		queue:    make(chan domain.Game, constants.StatsQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go r.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(r.stop)
			select {
			case <-r.done:
			case <-ctx.Done():
			}
			return nil
		},
	})

	return r
}

// Apply runs the full post-commit update for one game: rating first, then
// the per-hero ranking aggregate. Both steps dedup on the game id, so
// re-applying a half finished update only performs the missing part.
func (r *StatsRetrier) Apply(ctx context.Context, game domain.Game) error {
	if _, err := r.stats.Apply(ctx, game.UserID, game.ID, game.Mmr); err != nil {
		return err
	}
	if _, err := r.rankings.Record(ctx, game.UserID, game.HeroID, game.ID, game.Mmr); err != nil {
		return err
	}
	return nil
}

func (r *StatsRetrier) Enqueue(game domain.Game) {
	select {
	case r.queue <- game:
	default:
		r.logger.Warn().
			Str("game_id", game.ID).
			Str("user_id", game.UserID).
			Msg("statistics retry queue full, deferring to sweep")
	}
}

func (r *StatsRetrier) run() {
	defer close(r.done)

	r.sweep()

	ticker := time.NewTicker(constants.StatsSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case game := <-r.queue:
			r.retryGame(game)
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep replays committed games whose rating update is missing from storage.
// This is the durable fallback: updates abandoned by a restart, a full queue
// or exhausted in-memory retries are picked up here.
func (r *StatsRetrier) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	games, err := r.pending.ListUnapplied(ctx, time.Now().Add(-constants.StatsSweepGrace), constants.StatsQueueSize)
	cancel()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan for unapplied games")
		return
	}
	if len(games) == 0 {
		return
	}

	r.logger.Info().Int("count", len(games)).Msg("replaying unapplied statistics updates")
	for _, game := range games {
		r.retryGame(game)
	}
}

func (r *StatsRetrier) retryGame(game domain.Game) {
	backoff := retry.WithMaxRetries(constants.StatsRetryAttempts, retry.NewExponential(constants.StatsRetryBase))

	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		if err := r.Apply(ctx, game); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		r.logger.Info().Str("game_id", game.ID).Msg("queued statistics update applied")
		return
	}

	r.logger.Error().Err(err).
		Str("game_id", game.ID).
		Str("user_id", game.UserID).
		Msg("statistics update still failing, leaving for next sweep")
	r.Enqueue(game)
}
