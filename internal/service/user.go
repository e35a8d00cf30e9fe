package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hero-arena/internal/config"
	"hero-arena/internal/constants"
	"hero-arena/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "hero-arena"

// UserStore is the persistence contract for the identity records.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByLogin(ctx context.Context, login string) (*domain.User, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type UsersService struct {
	repo   UserStore
	secret []byte
	logger zerolog.Logger
	now    func() time.Time
}

func NewUsersService(repo UserStore, cfg *config.Config, logger zerolog.Logger) *UsersService {
	return &UsersService{
		repo:   repo,
		secret: []byte(cfg.JWTSecret),
		logger: logger,
		now:    time.Now,
	}
}

func (s *UsersService) Register(ctx context.Context, login, password string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	login = strings.TrimSpace(login)
	if login == "" || len(password) < constants.MinPasswordLength {
		return domain.User{}, domain.ErrInvalidLogin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.User{
		Login:        strings.ToLower(login),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		return domain.User{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("login", user.Login).Msg("user registered")
	return user, nil
}

func (s *UsersService) Login(ctx context.Context, login, password string) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	user, err := s.repo.GetByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		return Token{}, err
	}
	if user == nil {
		return Token{}, domain.ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Token{}, domain.ErrBadCredentials
	}

	return s.issueToken(user.ID)
}

// Extend re-issues a token for an already authenticated user.
func (s *UsersService) Extend(ctx context.Context, userID string) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	exists, err := s.repo.Exists(ctx, userID)
	if err != nil {
		return Token{}, err
	}
	if !exists {
		return Token{}, fmt.Errorf("%w: %s", domain.ErrUnknownUser, userID)
	}

	return s.issueToken(userID)
}

// VerifyToken resolves a bearer token to the user id it was issued for.
func (s *UsersService) VerifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBadCredentials, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrBadCredentials
	}
	return claims.Subject, nil
}

func (s *UsersService) issueToken(userID string) (Token, error) {
	now := s.now()
	expiresAt := now.Add(constants.TokenTTL)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}
