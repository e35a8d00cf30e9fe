package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"hero-arena/internal/api"
	"hero-arena/internal/config"
	"hero-arena/internal/database"
	"hero-arena/internal/middleware"
	"hero-arena/internal/rating"
	"hero-arena/internal/repository"
	"hero-arena/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type stubLifecycle struct {
	hooks []fx.Hook
}

func (l *stubLifecycle) Append(h fx.Hook) {
	l.hooks = append(l.hooks, h)
}

// newTestServer assembles the full stack over a throwaway database, the same
// wiring the container does in production.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		JWTSecret: "test-secret",
	}
	log := zerolog.Nop()

	db, err := database.New(cfg, log)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userRepo := repository.NewUserRepository(db, log)
	gameRepo := repository.NewGameRepository(db, log)
	statusRepo := repository.NewStatusRepository(db, log)
	rankingRepo := repository.NewRankingRepository(db, log)
	catalogRepo := repository.NewCatalogRepository(db, log)

	users := service.NewUsersService(userRepo, cfg, log)
	catalog, err := service.NewCatalogService(catalogRepo, api.NewCatalogClient(cfg), log)
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	stats := service.NewStatisticsService(statusRepo, rating.NewEloModel(), log)
	rankings := service.NewRankingService(rankingRepo, log)
	retrier := service.NewStatsRetrier(&stubLifecycle{}, stats, rankings, gameRepo, log)
	games := service.NewGameService(gameRepo, userRepo, catalog, retrier, log)

	arena := NewArenaServer(users, games, stats, rankings, catalog, log)
	auth := middleware.Auth(users, log)
	handler := middleware.RequestID(log)(arena.Handler(auth))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func registerAndLogin(t *testing.T, srv *httptest.Server, login string) string {
	t.Helper()

	creds := map[string]string{"login": login, "password": "hunter22"}

	resp := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", creds, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	resp = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", creds, &token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
	if token.AccessToken == "" {
		t.Fatal("login returned empty token")
	}
	return token.AccessToken
}

func TestSubmitGameFlow(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice")

	// A fresh user sits at the seed rating with no games.
	var status struct {
		Rating      float64 `json:"rating"`
		GamesPlayed int     `json:"games_played"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/statistics", token, nil, &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics returned %d", resp.StatusCode)
	}
	if status.Rating != rating.SeedRating || status.GamesPlayed != 0 {
		t.Fatalf("unexpected fresh status: %+v", status)
	}

	var submitted struct {
		Game struct {
			ID  string  `json:"id"`
			Mmr float64 `json:"mmr"`
		} `json:"game"`
		Warning string `json:"warning"`
	}
	resp = doJSON(t, srv, http.MethodPost, "/api/game", token, map[string]any{
		"hero_id":                 "ember",
		"opponent_composition_id": "dive",
		"outcome":                 "win",
		"score":                   0.5,
	}, &submitted)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("game submission returned %d", resp.StatusCode)
	}
	if submitted.Game.ID == "" || submitted.Warning != "" {
		t.Fatalf("unexpected submission response: %+v", submitted)
	}
	if submitted.Game.Mmr <= 0 || submitted.Game.Mmr > 1 {
		t.Fatalf("performance value out of range: %v", submitted.Game.Mmr)
	}

	// The rating moved and the game counted.
	resp = doJSON(t, srv, http.MethodGet, "/api/statistics", token, nil, &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics returned %d", resp.StatusCode)
	}
	if status.GamesPlayed != 1 {
		t.Fatalf("expected 1 game played, got %d", status.GamesPlayed)
	}
	if status.Rating == rating.SeedRating {
		t.Fatal("rating did not move after a game")
	}

	// One history row referencing the committed game.
	var history []struct {
		GameID string  `json:"game_id"`
		Delta  float64 `json:"delta"`
	}
	resp = doJSON(t, srv, http.MethodGet, "/api/statistics/history", token, nil, &history)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history returned %d", resp.StatusCode)
	}
	if len(history) != 1 || history[0].GameID != submitted.Game.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	// One ranking row for the hero played.
	var rankings []struct {
		Rank        int     `json:"rank"`
		HeroID      string  `json:"hero_id"`
		GamesPlayed int     `json:"games_played"`
		Average     float64 `json:"average"`
	}
	resp = doJSON(t, srv, http.MethodGet, "/api/hero/ranking", token, nil, &rankings)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ranking returned %d", resp.StatusCode)
	}
	if len(rankings) != 1 || rankings[0].HeroID != "ember" || rankings[0].Rank != 1 {
		t.Fatalf("unexpected rankings: %+v", rankings)
	}
	if rankings[0].GamesPlayed != 1 || rankings[0].Average != submitted.Game.Mmr {
		t.Fatalf("ranking aggregate wrong: %+v", rankings[0])
	}

	// The game shows up in the history listing.
	var gameList []struct {
		ID string `json:"id"`
	}
	resp = doJSON(t, srv, http.MethodGet, "/api/game", token, nil, &gameList)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("game history returned %d", resp.StatusCode)
	}
	if len(gameList) != 1 || gameList[0].ID != submitted.Game.ID {
		t.Fatalf("unexpected game history: %+v", gameList)
	}
}

func TestSubmitGameRejectsBadPayload(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "bob")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown hero", map[string]any{
			"hero_id": "nobody", "opponent_composition_id": "dive", "outcome": "win", "score": 0.5,
		}},
		{"unknown composition", map[string]any{
			"hero_id": "ember", "opponent_composition_id": "mystery", "outcome": "win", "score": 0.5,
		}},
		{"bad outcome", map[string]any{
			"hero_id": "ember", "opponent_composition_id": "dive", "outcome": "draw", "score": 0.5,
		}},
		{"score out of range", map[string]any{
			"hero_id": "ember", "opponent_composition_id": "dive", "outcome": "win", "score": 1.5,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/api/game", token, tc.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}

	// Nothing leaked into statistics.
	var status struct {
		GamesPlayed int `json:"games_played"`
	}
	doJSON(t, srv, http.MethodGet, "/api/statistics", token, nil, &status)
	if status.GamesPlayed != 0 {
		t.Fatalf("rejected submissions counted: %d", status.GamesPlayed)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/statistics", "/api/hero/ranking", "/api/game"} {
		resp := doJSON(t, srv, http.MethodGet, path, "", nil, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token returned %d", path, resp.StatusCode)
		}
	}

	resp := doJSON(t, srv, http.MethodGet, "/api/statistics", "not-a-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token returned %d", resp.StatusCode)
	}
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	var heroes []struct {
		ID           string  `json:"id"`
		BaseStrength float64 `json:"base_strength"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/hero", "", nil, &heroes)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hero list returned %d", resp.StatusCode)
	}
	if len(heroes) == 0 {
		t.Fatal("expected seeded heroes")
	}

	var comps []struct {
		ID      string   `json:"id"`
		HeroIDs []string `json:"hero_ids"`
	}
	resp = doJSON(t, srv, http.MethodGet, "/api/composition", "", nil, &comps)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("composition list returned %d", resp.StatusCode)
	}
	if len(comps) == 0 {
		t.Fatal("expected seeded compositions")
	}

	var probe map[string]string
	resp = doJSON(t, srv, http.MethodGet, "/api/test", "", nil, &probe)
	if resp.StatusCode != http.StatusOK || probe["message"] != "OK" {
		t.Fatalf("probe returned %d / %+v", resp.StatusCode, probe)
	}
}

func TestRegisterConflictAndBadLogin(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "carol")

	resp := doJSON(t, srv, http.MethodPost, "/api/auth/register", "",
		map[string]string{"login": "carol", "password": "hunter23"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register returned %d", resp.StatusCode)
	}

	resp = doJSON(t, srv, http.MethodPost, "/api/auth/login", "",
		map[string]string{"login": "carol", "password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login returned %d", resp.StatusCode)
	}
}

func TestExtendToken(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "dave")

	var extended struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	resp := doJSON(t, srv, http.MethodGet, "/api/auth/extend", token, nil, &extended)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extend returned %d", resp.StatusCode)
	}
	if extended.AccessToken == "" || extended.ExpiresAt.Before(time.Now()) {
		t.Fatalf("unexpected extended token: %+v", extended)
	}

	// The extended token works against a protected route.
	resp = doJSON(t, srv, http.MethodGet, "/api/statistics", extended.AccessToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics with extended token returned %d", resp.StatusCode)
	}
}
