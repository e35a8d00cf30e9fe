package service

import (
	"context"

	"hero-arena/internal/api"
	"hero-arena/internal/constants"
	"hero-arena/internal/domain"
	"hero-arena/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CatalogService serves the hero and composition catalogs. The catalogs are
// loaded once at construction and immutable for the process lifetime, so
// reads need no synchronization. When a remote catalog upstream is
// configured it is synced into the database first; otherwise the seeded
// catalog stands.
type CatalogService struct {
	heroes    map[string]domain.Hero
	comps     map[string]domain.Composition
	strengths map[string]float64
	heroList  []domain.Hero
	compList  []domain.Composition
	logger    zerolog.Logger
}

func NewCatalogService(repo *repository.CatalogRepository, client *api.CatalogClient, logger zerolog.Logger) (*CatalogService, error) {
	ctx := context.Background()

	if client.Enabled() {
		if err := syncCatalog(ctx, repo, client, logger); err != nil {
			logger.Warn().Err(err).Msg("catalog sync failed, serving stored catalog")
		}
	}

	loadCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	heroList, err := repo.ListHeroes(loadCtx)
	if err != nil {
		return nil, err
	}
	compList, err := repo.ListCompositions(loadCtx)
	if err != nil {
		return nil, err
	}

	s := &CatalogService{
		heroes:    make(map[string]domain.Hero, len(heroList)),
		comps:     make(map[string]domain.Composition, len(compList)),
		strengths: make(map[string]float64, len(compList)),
		heroList:  heroList,
		compList:  compList,
		logger:    logger,
	}
	for _, hero := range heroList {
		s.heroes[hero.ID] = hero
	}
	for _, comp := range compList {
		s.comps[comp.ID] = comp
		s.strengths[comp.ID] = s.computeStrength(comp)
	}

	logger.Info().
		Int("heroes", len(heroList)).
		Int("compositions", len(compList)).
		Msg("catalog loaded")

	return s, nil
}

func syncCatalog(ctx context.Context, repo *repository.CatalogRepository, client *api.CatalogClient, logger zerolog.Logger) error {
	apiCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(apiCtx)
	var heroes []domain.Hero
	var comps []domain.Composition

	g.Go(func() error {
		var err error
		heroes, err = client.GetHeroes(gCtx)
		return err
	})

	g.Go(func() error {
		var err error
		comps, err = client.GetCompositions(gCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := repo.UpsertHeroes(ctx, heroes); err != nil {
		return err
	}
	if err := repo.UpsertCompositions(ctx, comps); err != nil {
		return err
	}

	logger.Info().
		Int("heroes", len(heroes)).
		Int("compositions", len(comps)).
		Msg("catalog synced from upstream")
	return nil
}

func (s *CatalogService) Heroes() []domain.Hero {
	return s.heroList
}

func (s *CatalogService) Compositions() []domain.Composition {
	return s.compList
}

func (s *CatalogService) Hero(id string) (domain.Hero, bool) {
	hero, ok := s.heroes[id]
	return hero, ok
}

func (s *CatalogService) Composition(id string) (domain.Composition, bool) {
	comp, ok := s.comps[id]
	return comp, ok
}

// CompositionStrength is the mean base strength of the composition's heroes,
// in [0, 1]. Unknown ids score a neutral 0.5; submissions are validated
// against the catalog before this is consulted.
func (s *CatalogService) CompositionStrength(id string) float64 {
	if strength, ok := s.strengths[id]; ok {
		return strength
	}
	return 0.5
}

func (s *CatalogService) computeStrength(comp domain.Composition) float64 {
	if len(comp.HeroIDs) == 0 {
		return 0.5
	}
	var total float64
	for _, heroID := range comp.HeroIDs {
		if hero, ok := s.heroes[heroID]; ok {
			total += hero.BaseStrength
		} else {
			total += 0.5
		}
	}
	strength := total / float64(len(comp.HeroIDs))
	return clamp01(strength)
}
