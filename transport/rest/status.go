package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ChelseaDH/game-server/internal/repository"
)

type matchmaker interface {
	Waiting() int
}

type scoreboard interface {
	Totals(ctx context.Context) (repository.Totals, error)
}

type statusResponse struct {
	WaitingSessions int               `json:"waiting_sessions"`
	Scoreboard      repository.Totals `json:"scoreboard"`
}

type StatusHandler interface {
	StatusHandler(w http.ResponseWriter, r *http.Request)
}

type statusHandler struct {
	logger *slog.Logger
	lobby  matchmaker
	scores scoreboard
}

func NewStatusHandler(logger *slog.Logger, lobby matchmaker, scores scoreboard) StatusHandler {
	return &statusHandler{
		logger: logger,
		lobby:  lobby,
		scores: scores,
	}
}

// StatusHandler - reports how many sessions wait for an opponent and the
// all-time scoreboard totals.
func (that *statusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "StatusHandler")

	totals, err := that.scores.Totals(r.Context())
	if err != nil {
		log.Error("failed to read scoreboard", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	response := statusResponse{
		WaitingSessions: that.lobby.Waiting(),
		Scoreboard:      totals,
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(response); err != nil {
		log.Error("failed to encode status", "error", err)
	}
}
