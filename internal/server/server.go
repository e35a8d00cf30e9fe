package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hero-arena/internal/domain"
	"hero-arena/internal/middleware"
	"hero-arena/internal/service"

	"github.com/rs/zerolog"
)

// ArenaServer is the REST façade over the rating and ranking engine.
type ArenaServer struct {
	users    *service.UsersService
	games    *service.GameService
	stats    *service.StatisticsService
	rankings *service.RankingService
	catalog  *service.CatalogService
	logger   zerolog.Logger
}

func NewArenaServer(
	users *service.UsersService,
	games *service.GameService,
	stats *service.StatisticsService,
	rankings *service.RankingService,
	catalog *service.CatalogService,
	logger zerolog.Logger,
) *ArenaServer {
	return &ArenaServer{
		users:    users,
		games:    games,
		stats:    stats,
		rankings: rankings,
		catalog:  catalog,
		logger:   logger,
	}
}

// Handler wires the route table. Routes that act on behalf of a user go
// through the auth middleware; catalog listings and the probe stay public.
func (s *ArenaServer) Handler(auth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/extend", auth(http.HandlerFunc(s.handleExtend)))

	mux.HandleFunc("GET /api/hero", s.handleHeroList)
	mux.HandleFunc("GET /api/composition", s.handleCompositionList)
	mux.Handle("GET /api/hero/ranking", auth(http.HandlerFunc(s.handleHeroRanking)))

	mux.Handle("POST /api/game", auth(http.HandlerFunc(s.handleSubmitGame)))
	mux.Handle("GET /api/game", auth(http.HandlerFunc(s.handleGameHistory)))

	mux.Handle("GET /api/statistics", auth(http.HandlerFunc(s.handleStatistics)))
	mux.Handle("GET /api/statistics/history", auth(http.HandlerFunc(s.handleStatisticsHistory)))

	mux.HandleFunc("GET /api/test", s.handleTest)

	return mux
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *ArenaServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrInvalidLogin)
		return
	}

	user, err := s.users.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Login:     user.Login,
		CreatedAt: user.CreatedAt,
	})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *ArenaServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrBadCredentials)
		return
	}

	token, err := s.users.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, token)
}

func (s *ArenaServer) handleExtend(w http.ResponseWriter, r *http.Request) {
	token, err := s.users.Extend(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, token)
}

type heroResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	BaseStrength float64 `json:"base_strength"`
}

func (s *ArenaServer) handleHeroList(w http.ResponseWriter, r *http.Request) {
	heroes := s.catalog.Heroes()
	resp := make([]heroResponse, len(heroes))
	for i, hero := range heroes {
		resp[i] = heroResponse{
			ID:           hero.ID,
			Name:         hero.Name,
			Role:         hero.Role,
			BaseStrength: hero.BaseStrength,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type compositionResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	HeroIDs []string `json:"hero_ids"`
}

func (s *ArenaServer) handleCompositionList(w http.ResponseWriter, r *http.Request) {
	comps := s.catalog.Compositions()
	resp := make([]compositionResponse, len(comps))
	for i, comp := range comps {
		resp[i] = compositionResponse{
			ID:      comp.ID,
			Name:    comp.Name,
			HeroIDs: comp.HeroIDs,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type heroRankingResponse struct {
	Rank        int     `json:"rank"`
	HeroID      string  `json:"hero_id"`
	HeroName    string  `json:"hero_name,omitempty"`
	GamesPlayed int     `json:"games_played"`
	Score       float64 `json:"score"`
	Average     float64 `json:"average"`
}

func (s *ArenaServer) handleHeroRanking(w http.ResponseWriter, r *http.Request) {
	rankings, err := s.rankings.RankingFor(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]heroRankingResponse, len(rankings))
	for i, ranking := range rankings {
		entry := heroRankingResponse{
			Rank:        i + 1,
			HeroID:      ranking.HeroID,
			GamesPlayed: ranking.GamesPlayed,
			Score:       ranking.Score,
			Average:     ranking.Average(),
		}
		if hero, ok := s.catalog.Hero(ranking.HeroID); ok {
			entry.HeroName = hero.Name
		}
		resp[i] = entry
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type submitGameRequest struct {
	HeroID                string  `json:"hero_id"`
	OpponentCompositionID string  `json:"opponent_composition_id"`
	Outcome               string  `json:"outcome"`
	Score                 float64 `json:"score"`
}

type gameResponse struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	HeroID                string    `json:"hero_id"`
	OpponentCompositionID string    `json:"opponent_composition_id"`
	Outcome               string    `json:"outcome"`
	Score                 float64   `json:"score"`
	Mmr                   float64   `json:"mmr"`
	CreatedAt             time.Time `json:"created_at"`
}

type submitGameResponse struct {
	Game    gameResponse `json:"game"`
	Warning string       `json:"warning,omitempty"`
}

func (s *ArenaServer) handleSubmitGame(w http.ResponseWriter, r *http.Request) {
	var req submitGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, domain.ErrInvalidSubmission)
		return
	}

	game, err := s.games.SubmitGame(r.Context(), middleware.GetUserID(r.Context()), service.Submission{
		HeroID:                req.HeroID,
		OpponentCompositionID: req.OpponentCompositionID,
		Outcome:               domain.Outcome(req.Outcome),
		Score:                 req.Score,
	})
	if errors.Is(err, domain.ErrStatisticsUpdate) {
		// The game committed; rating and ranking will catch up via retry.
		s.writeJSON(w, http.StatusAccepted, submitGameResponse{
			Game:    toGameResponse(game),
			Warning: "statistics update pending",
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, submitGameResponse{Game: toGameResponse(game)})
}

func (s *ArenaServer) handleGameHistory(w http.ResponseWriter, r *http.Request) {
	games, err := s.games.History(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]gameResponse, len(games))
	for i, game := range games {
		resp[i] = toGameResponse(game)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	UserID      string     `json:"user_id"`
	Rating      float64    `json:"rating"`
	GamesPlayed int        `json:"games_played"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

func (s *ArenaServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	status, err := s.stats.Status(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		UserID:      status.UserID,
		Rating:      status.Rating,
		GamesPlayed: status.GamesPlayed,
	}
	if !status.LastUpdated.IsZero() {
		resp.LastUpdated = &status.LastUpdated
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	GameID       string    `json:"game_id"`
	RatingBefore float64   `json:"rating_before"`
	RatingAfter  float64   `json:"rating_after"`
	Delta        float64   `json:"delta"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *ArenaServer) handleStatisticsHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.stats.History(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]historyResponse, len(records))
	for i, h := range records {
		resp[i] = historyResponse{
			GameID:       h.GameID,
			RatingBefore: h.RatingBefore,
			RatingAfter:  h.RatingAfter,
			Delta:        h.Delta,
			CreatedAt:    h.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *ArenaServer) handleTest(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
}

func toGameResponse(game domain.Game) gameResponse {
	return gameResponse{
		ID:                    game.ID,
		UserID:                game.UserID,
		HeroID:                game.HeroID,
		OpponentCompositionID: game.OpponentCompositionID,
		Outcome:               string(game.Outcome),
		Score:                 game.Score,
		Mmr:                   game.Mmr,
		CreatedAt:             game.CreatedAt,
	}
}

func (s *ArenaServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *ArenaServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSubmission),
		errors.Is(err, domain.ErrInvalidLogin),
		errors.Is(err, domain.ErrInvalidPerformance):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrBadCredentials),
		errors.Is(err, domain.ErrUnknownUser):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrLoginTaken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPersistence):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
