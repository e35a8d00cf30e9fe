package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hero-arena/internal/constants"
	"hero-arena/internal/domain"

	"github.com/rs/zerolog"
)

type CatalogRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCatalogRepository(sqlDB *sql.DB, logger zerolog.Logger) *CatalogRepository {
	return &CatalogRepository{db: sqlDB, logger: logger}
}

func (r *CatalogRepository) ListHeroes(ctx context.Context) ([]domain.Hero, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, role, base_strength FROM heroes ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list heroes: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var heroes []domain.Hero
	for rows.Next() {
		var hero domain.Hero
		if err := rows.Scan(&hero.ID, &hero.Name, &hero.Role, &hero.BaseStrength); err != nil {
			return nil, fmt.Errorf("%w: scan hero: %v", domain.ErrPersistence, err)
		}
		heroes = append(heroes, hero)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list heroes: %v", domain.ErrPersistence, err)
	}
	return heroes, nil
}

func (r *CatalogRepository) ListCompositions(ctx context.Context) ([]domain.Composition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, ch.hero_id
		 FROM compositions c
		 JOIN composition_heroes ch ON ch.composition_id = c.id
		 ORDER BY c.id, ch.hero_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list compositions: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var comps []domain.Composition
	index := make(map[string]int)
	for rows.Next() {
		var id, name, heroID string
		if err := rows.Scan(&id, &name, &heroID); err != nil {
			return nil, fmt.Errorf("%w: scan composition: %v", domain.ErrPersistence, err)
		}
		i, ok := index[id]
		if !ok {
			i = len(comps)
			index[id] = i
			comps = append(comps, domain.Composition{ID: id, Name: name})
		}
		comps[i].HeroIDs = append(comps[i].HeroIDs, heroID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list compositions: %v", domain.ErrPersistence, err)
	}
	return comps, nil
}

// UpsertHeroes overwrites catalog rows by id, batched inside one transaction.
func (r *CatalogRepository) UpsertHeroes(ctx context.Context, heroes []domain.Hero) error {
	if len(heroes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	for i := 0; i < len(heroes); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(heroes) {
			end = len(heroes)
		}

		for _, hero := range heroes[i:end] {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO heroes (id, name, role, base_strength)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET
				     name = excluded.name,
				     role = excluded.role,
				     base_strength = excluded.base_strength`,
				hero.ID, hero.Name, hero.Role, hero.BaseStrength,
			)
			if err != nil {
				return fmt.Errorf("%w: upsert hero %s: %v", domain.ErrPersistence, hero.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit heroes: %v", domain.ErrPersistence, err)
	}
	return nil
}

// UpsertCompositions replaces each composition's hero set wholesale.
func (r *CatalogRepository) UpsertCompositions(ctx context.Context, comps []domain.Composition) error {
	if len(comps) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	for _, comp := range comps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO compositions (id, name)
			 VALUES (?, ?)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
			comp.ID, comp.Name,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert composition %s: %v", domain.ErrPersistence, comp.ID, err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM composition_heroes WHERE composition_id = ?`, comp.ID,
		)
		if err != nil {
			return fmt.Errorf("%w: clear composition %s: %v", domain.ErrPersistence, comp.ID, err)
		}

		for _, heroID := range comp.HeroIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO composition_heroes (composition_id, hero_id) VALUES (?, ?)`,
				comp.ID, heroID,
			)
			if err != nil {
				return fmt.Errorf("%w: link composition %s hero %s: %v", domain.ErrPersistence, comp.ID, heroID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit compositions: %v", domain.ErrPersistence, err)
	}
	return nil
}
