package fx

import (
	"hero-arena/internal/api"
	"hero-arena/internal/config"
	"hero-arena/internal/database"
	"hero-arena/internal/logger"
	"hero-arena/internal/rating"
	"hero-arena/internal/repository"
	"hero-arena/internal/server"
	"hero-arena/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideRatingModel() rating.Model {
	return rating.NewEloModel()
}

// The services depend on narrow store interfaces; these adapters bind the
// concrete repositories to them for the container.

func ProvideUsersService(repo *repository.UserRepository, cfg *config.Config, log zerolog.Logger) *service.UsersService {
	return service.NewUsersService(repo, cfg, log)
}

func ProvideStatisticsService(repo *repository.StatusRepository, model rating.Model, log zerolog.Logger) *service.StatisticsService {
	return service.NewStatisticsService(repo, model, log)
}

func ProvideRankingService(repo *repository.RankingRepository, log zerolog.Logger) *service.RankingService {
	return service.NewRankingService(repo, log)
}

func ProvideStatsRetrier(
	lc fx.Lifecycle,
	stats *service.StatisticsService,
	rankings *service.RankingService,
	games *repository.GameRepository,
	log zerolog.Logger,
) *service.StatsRetrier {
	return service.NewStatsRetrier(lc, stats, rankings, games, log)
}

func ProvideGameService(
	games *repository.GameRepository,
	users *repository.UserRepository,
	catalog *service.CatalogService,
	retrier *service.StatsRetrier,
	log zerolog.Logger,
) *service.GameService {
	return service.NewGameService(games, users, catalog, retrier, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewUserRepository),
	fx.Provide(repository.NewGameRepository),
	fx.Provide(repository.NewStatusRepository),
	fx.Provide(repository.NewRankingRepository),
	fx.Provide(repository.NewCatalogRepository),
	// api client
	fx.Provide(api.NewCatalogClient),
	// svc
	fx.Provide(ProvideRatingModel),
	fx.Provide(ProvideUsersService),
	fx.Provide(service.NewCatalogService),
	fx.Provide(ProvideStatisticsService),
	fx.Provide(ProvideRankingService),
	fx.Provide(ProvideStatsRetrier),
	fx.Provide(ProvideGameService),
	// server
	fx.Provide(server.NewArenaServer),
)
