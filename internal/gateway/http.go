package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/archive"
	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/pkg/chessdto"
)

// Routes mounts the websocket endpoint and the read-only HTTP API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.ServeHTTP)
	r.Route("/games/{id}", func(r chi.Router) {
		r.Get("/", s.handleGame)
		r.Get("/pgn", s.handlePGN)
	})
	r.Get("/users/{id}/games", s.handleUserGames)
	r.Get("/users/{id}/active", s.handleUserActive)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"games":       s.reg.Len(),
		"connections": s.Connections(),
	})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if snap, err := s.reg.Snapshot(id); err == nil {
		writeJSON(w, http.StatusOK, registry.SnapshotDTO(snap))
		return
	}
	if s.repo != nil {
		g, err := s.repo.LoadGame(r.Context(), id)
		if err != nil {
			s.logger.Error("http_game_load_error", zap.String("game_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, describe(s.cat, err, nil))
			return
		}
		if g != nil {
			writeJSON(w, http.StatusOK, archivedSnapshot(*g))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, describe(s.cat, registry.ErrSessionNotFound, nil))
}

func (s *Server) handlePGN(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pgn, err := s.reg.PGN(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, describe(s.cat, err, nil))
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pgn"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pgn))
}

func (s *Server) handleUserGames(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusOK, []chessdto.GameRecord{})
		return
	}
	limit := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	games, err := s.repo.RecentGames(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.logger.Error("http_recent_games_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, describe(s.cat, err, nil))
		return
	}
	out := make([]chessdto.GameRecord, 0, len(games))
	for _, g := range games {
		out = append(out, chessdto.GameRecord{
			GameID:      g.ID,
			White:       chessdto.Participant{ID: g.WhiteID, Name: g.WhiteName},
			Black:       chessdto.Participant{ID: g.BlackID, Name: g.BlackName},
			Status:      g.Status,
			Reason:      g.Reason,
			Winner:      g.Winner,
			Plies:       len(g.MovesUCI),
			TimeControl: g.TimeControl,
			StartedAt:   g.StartedAt,
			UpdatedAt:   g.UpdatedAt,
			DurationMs:  g.Duration().Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserActive(w http.ResponseWriter, r *http.Request) {
	games := s.reg.GamesOf(chi.URLParam(r, "id"))
	out := make([]chessdto.GameSnapshot, 0, len(games))
	for _, g := range games {
		out = append(out, registry.SnapshotDTO(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func archivedSnapshot(g archive.Game) chessdto.GameSnapshot {
	out := chessdto.GameSnapshot{
		GameID:      g.ID,
		Seq:         g.Seq,
		Status:      g.Status,
		Reason:      g.Reason,
		Winner:      g.Winner,
		White:       chessdto.Participant{ID: g.WhiteID, Name: g.WhiteName},
		Black:       chessdto.Participant{ID: g.BlackID, Name: g.BlackName},
		FEN:         g.FEN,
		MovesUCI:    g.MovesUCI,
		MovesSAN:    g.MovesSAN,
		TimeControl: g.TimeControl,
		CreatedAt:   g.StartedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if st, err := board.ParseFEN(g.FEN); err == nil {
		out.Turn = st.Turn().String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
