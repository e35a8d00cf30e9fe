package domain

import (
	"time"
)

type User struct {
	ID           string
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}

// Hero is immutable reference data, loaded once per process.
type Hero struct {
	ID           string
	Name         string
	Role         string
	BaseStrength float64 // normalized to [0, 1]
}

// Composition is a named team shape made of hero ids.
type Composition struct {
	ID      string
	Name    string
	HeroIDs []string
}

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

func (o Outcome) Valid() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

// Game is one played instance. Rows are append-only: Mmr is computed once
// before insert and never rewritten.
type Game struct {
	ID                    string // nanoid
	UserID                string
	HeroID                string
	OpponentCompositionID string
	Outcome               Outcome
	Score                 float64 // normalized personal score in [0, 1]
	Mmr                   float64 // performance value fed into the rating model
	CreatedAt             time.Time
}

// MmrStatus is the per-user current rating. One row per user, created lazily
// at the seed rating on the first game.
type MmrStatus struct {
	UserID      string
	Rating      float64
	GamesPlayed int
	LastUpdated time.Time
}

// HeroRanking is the per-(user, hero) aggregate backing ranking queries.
// LastGameID is the id of the game most recently folded in; re-recording that
// game is a no-op, so retried updates cannot double count.
type HeroRanking struct {
	UserID      string
	HeroID      string
	GamesPlayed int
	Score       float64 // cumulative
	LastGameID  string
	UpdatedAt   time.Time
}

// Average is the ranking score function: cumulative score per game played.
func (r HeroRanking) Average() float64 {
	if r.GamesPlayed == 0 {
		return 0
	}
	return r.Score / float64(r.GamesPlayed)
}

// MmrHistory is the audit trail row written alongside every rating update.
type MmrHistory struct {
	ID           string // nanoid
	UserID       string
	GameID       string
	RatingBefore float64
	RatingAfter  float64
	Delta        float64
	CreatedAt    time.Time
}
