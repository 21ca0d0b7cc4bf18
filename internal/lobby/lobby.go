package lobby

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ChelseaDH/game-server/internal/match"
	"github.com/ChelseaDH/game-server/internal/pkg"
	"github.com/ChelseaDH/game-server/internal/session"
)

// recorder keeps aggregate match outcomes.
type recorder interface {
	RecordOutcome(ctx context.Context, outcome, winner string) error
}

// Lobby pairs waiting sessions into matches in strict arrival order.
type Lobby struct {
	logger *slog.Logger
	scores recorder

	mu      sync.Mutex
	waiting []*session.Session
}

func New(logger *slog.Logger, scores recorder) *Lobby {
	return &Lobby{
		logger: logger.With("component", "lobby"),
		scores: scores,
	}
}

// Enqueue - adds a session to the queue and starts a match as soon as
// two are waiting. The earlier arrival plays X.
func (that *Lobby) Enqueue(s *session.Session) {
	that.mu.Lock()

	that.waiting = append(that.waiting, s)

	var first, second *session.Session
	if len(that.waiting) >= 2 {
		first, second = that.waiting[0], that.waiting[1]
		that.waiting = that.waiting[2:]
	}

	that.mu.Unlock()

	if first == nil {
		that.logger.Info("session waiting for an opponent", "session", s.ID())
		return
	}

	that.startMatch(first, second)
}

// Remove - forgets a waiting session. Sessions that are not queued are
// a no-op.
func (that *Lobby) Remove(s *session.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i, waiting := range that.waiting {
		if waiting.ID() == s.ID() {
			that.waiting = append(that.waiting[:i], that.waiting[i+1:]...)
			return
		}
	}
}

// Waiting - reports how many sessions have no opponent yet.
func (that *Lobby) Waiting() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.waiting)
}

// startMatch - runs outside the queue lock: starting a match sends
// messages, and a failed send re-enters the lobby through session
// teardown.
func (that *Lobby) startMatch(first, second *session.Session) {
	id := pkg.GenerateMatchID()
	log := that.logger.With("method", "startMatch", "match", id)

	done := func(report *match.Report) {
		that.finishMatch(report, first, second)
	}

	newMatch := match.New(id, first, second, done, that.logger)
	first.Bind(newMatch)
	second.Bind(newMatch)

	log.Info("pairing sessions", "x", first.ID(), "o", second.ID())
	newMatch.Begin()
}

// finishMatch - records the outcome, then queues the players whose
// connections are still open for their next match.
func (that *Lobby) finishMatch(report *match.Report, first, second *session.Session) {
	log := that.logger.With("method", "finishMatch", "match", report.MatchID)

	if err := that.scores.RecordOutcome(context.Background(), report.Outcome, report.Winner); err != nil {
		log.Error("failed to record outcome", "error", err)
	}

	for _, s := range []*session.Session{first, second} {
		if s.ID() == report.AbandonedBy || s.Closed() {
			continue
		}

		that.Enqueue(s)
	}
}
