package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hero-arena/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type UserRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUserRepository(sqlDB *sql.DB, logger zerolog.Logger) *UserRepository {
	return &UserRepository{db: sqlDB, logger: logger}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		user.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, login, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Login, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.ErrLoginTaken
		}
		r.logger.Error().Err(err).Str("login", user.Login).Msg("failed to insert user")
		return fmt.Errorf("%w: insert user: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = ?`, login,
	).Scan(&user.ID, &user.Login, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user by login: %v", domain.ErrPersistence, err)
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: check user exists: %v", domain.ErrPersistence, err)
	}
	return count > 0, nil
}
