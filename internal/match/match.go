package match

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ChelseaDH/game-server/internal/apperror"
	"github.com/ChelseaDH/game-server/internal/entity"
	"github.com/ChelseaDH/game-server/internal/protocol"
)

// Client is the connection side of a participant as the match sees it.
// Send must not block; a client that cannot take a message reports an
// error instead.
type Client interface {
	ID() string
	Send(msg protocol.Message) error
}

// Report describes how a match ended.
type Report struct {
	MatchID     string
	Outcome     string
	Winner      string
	AbandonedBy string
}

// Match referees one game between exactly two clients. Every state
// transition and the broadcast it causes happen under one mutex, so both
// clients observe updates in the same order and concurrent moves cannot
// interleave.
type Match struct {
	id      string
	logger  *slog.Logger
	done    func(report *Report)
	started chan struct{}

	mu      sync.Mutex
	board   entity.Board
	clients [2]Client
	marks   map[string]string
	turn    string
	status  string
	report  *Report
}

// New - creates a match between two clients. The earlier arrival plays X
// and moves first.
func New(id string, first, second Client, done func(report *Report), logger *slog.Logger) *Match {
	return &Match{
		id:      id,
		logger:  logger.With("match", id),
		done:    done,
		started: make(chan struct{}),
		board:   entity.NewBoard(),
		clients: [2]Client{first, second},
		marks: map[string]string{
			first.ID():  entity.PlayerX,
			second.ID(): entity.PlayerO,
		},
		turn:   entity.PlayerX,
		status: entity.StatusWaiting,
	}
}

func (that *Match) ID() string {
	return that.id
}

// Started - closed once the match is no longer waiting to begin, whether
// play opened or the match died first. Sessions hold early turns until
// then.
func (that *Match) Started() <-chan struct{} {
	return that.started
}

// Begin - announces the match to both clients and opens play.
func (that *Match) Begin() {
	that.deliver(that.begin())
}

func (that *Match) begin() *Report {
	log := that.logger.With("method", "begin")

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != entity.StatusWaiting {
		return nil
	}
	that.status = entity.StatusOngoing
	close(that.started)

	for i, client := range that.clients {
		msg, err := protocol.NewMessage(protocol.ActionMatchStarted, protocol.MatchStartedPayload{
			Match:    that.id,
			Mark:     that.marks[client.ID()],
			Opponent: that.clients[1-i].ID(),
		})
		if err != nil {
			log.Error("failed to build start message", "error", err)
			continue
		}

		if err = client.Send(msg); err != nil {
			log.Info("client unreachable", "client", client.ID(), "error", err)
			return that.abandon(client.ID())
		}
	}

	if lost := that.broadcastBoard(); lost != "" {
		return that.abandon(lost)
	}

	log.Info("match started", "x", that.clients[0].ID(), "o", that.clients[1].ID())

	return nil
}

// HandleMove - validates and applies one move. A rule violation is
// returned to the caller and changes neither the board nor the turn.
func (that *Match) HandleMove(clientID string, cell int) error {
	report, err := that.applyMove(clientID, cell)
	that.deliver(report)

	return err
}

func (that *Match) applyMove(clientID string, cell int) (*Report, error) {
	log := that.logger.With("method", "applyMove", "client", clientID)

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status == entity.StatusFinished {
		return nil, apperror.ErrMatchFinished
	}

	if that.status == entity.StatusWaiting {
		return nil, apperror.ErrMatchNotStarted
	}

	mark, ok := that.marks[clientID]
	if !ok || mark != that.turn {
		return nil, apperror.ErrNotYourTurn
	}

	if err := that.board.Apply(mark, cell); err != nil {
		return nil, fmt.Errorf("failed to apply move: %w", err)
	}

	log.Debug("move accepted", "cell", cell, "mark", mark)

	result := that.board.Result()
	if result == entity.EmptyCell {
		that.toggleTurn()

		if lost := that.broadcastBoard(); lost != "" {
			return that.abandon(lost), nil
		}

		return nil, nil
	}

	// terminal move: the final board goes out before the verdict
	that.turn = entity.EmptyCell
	that.status = entity.StatusFinished

	report := &Report{MatchID: that.id, Outcome: entity.OutcomeDraw}
	if result != entity.PlayerTie {
		report.Outcome = entity.OutcomeWin
		report.Winner = result
	}

	if lost := that.broadcastBoard(); lost != "" {
		log.Info("client missed the final board", "client", lost)
	}

	return that.finish(report), nil
}

// HandleDisconnect - ends an unfinished match because the client is gone.
// Safe to call more than once; only the first call has any effect.
func (that *Match) HandleDisconnect(clientID string) {
	that.mu.Lock()
	report := that.abandon(clientID)
	that.mu.Unlock()

	that.deliver(report)
}

// abandon - ends the match on behalf of a vanished client. Callers hold
// the lock. Finished matches are left alone.
func (that *Match) abandon(clientID string) *Report {
	if that.status == entity.StatusFinished {
		return nil
	}

	if that.status == entity.StatusWaiting {
		// a match can die before it begins; turns parked on it must
		// not wait forever
		close(that.started)
	}

	return that.finish(&Report{
		MatchID:     that.id,
		Outcome:     entity.OutcomeAbandoned,
		AbandonedBy: clientID,
	})
}

// finish - records the terminal state and tells every remaining client.
// Exactly one terminal broadcast leaves a match. Callers hold the lock.
func (that *Match) finish(report *Report) *Report {
	that.status = entity.StatusFinished
	that.turn = entity.EmptyCell
	that.report = report

	msg, err := protocol.NewMessage(protocol.ActionMatchEnded, protocol.MatchEndedPayload{
		Outcome:     report.Outcome,
		Winner:      report.Winner,
		AbandonedBy: report.AbandonedBy,
	})
	if err != nil {
		that.logger.Error("failed to build end message", "error", err)
		return report
	}

	for _, client := range that.clients {
		if client.ID() == report.AbandonedBy {
			continue
		}

		if err = client.Send(msg); err != nil {
			that.logger.Info("failed to deliver end message", "client", client.ID(), "error", err)
		}
	}

	return report
}

// broadcastBoard - sends the current board to both clients and reports
// the first client a send failed for. Callers hold the lock.
func (that *Match) broadcastBoard() string {
	msg, err := protocol.NewMessage(protocol.ActionBoardUpdated, protocol.BoardUpdatedPayload{
		Cells:  that.board.Cells(),
		Status: that.status,
		Turn:   that.turn,
	})
	if err != nil {
		that.logger.Error("failed to build board message", "error", err)
		return ""
	}

	for _, client := range that.clients {
		if err = client.Send(msg); err != nil {
			that.logger.Info("failed to deliver board", "client", client.ID(), "error", err)
			return client.ID()
		}
	}

	return ""
}

func (that *Match) toggleTurn() {
	if that.turn == entity.PlayerX {
		that.turn = entity.PlayerO
	} else {
		that.turn = entity.PlayerX
	}
}

// deliver - fires the completion hook outside the lock, so the hook may
// queue the players for another match without re-entering this one.
func (that *Match) deliver(report *Report) {
	if report == nil || that.done == nil {
		return
	}

	that.logger.Info("match finished", "outcome", report.Outcome, "winner", report.Winner)
	that.done(report)
}
