package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ChelseaDH/game-server/internal/apperror"
	"github.com/ChelseaDH/game-server/internal/pkg"
	"github.com/ChelseaDH/game-server/internal/protocol"
)

var ErrSessionClosed = errors.New("session is closed")

// outboundBuffer bounds how many messages may queue for a client that
// stopped reading before the session is dropped.
const outboundBuffer = 32

// Match is the part of a match a session talks to.
type Match interface {
	Started() <-chan struct{}
	HandleMove(clientID string, cell int) error
	HandleDisconnect(clientID string)
}

// Matchmaker pairs sessions into matches.
type Matchmaker interface {
	Enqueue(session *Session)
	Remove(session *Session)
}

// Session owns one client connection end to end: the connect handshake,
// the read loop feeding moves into the current match, and the write loop
// draining broadcasts back out.
type Session struct {
	id     string
	conn   protocol.Conn
	logger *slog.Logger

	matchmaker Matchmaker

	outbound chan protocol.Message
	stopped  chan struct{}

	mu    sync.Mutex
	match Match

	bound     chan struct{}
	boundOnce sync.Once

	closed    atomic.Bool
	closeOnce sync.Once
}

func New(conn protocol.Conn, matchmaker Matchmaker, logger *slog.Logger) *Session {
	id := pkg.GenerateNewSessionID()

	return &Session{
		id:         id,
		conn:       conn,
		logger:     logger.With("session", id),
		matchmaker: matchmaker,
		outbound:   make(chan protocol.Message, outboundBuffer),
		stopped:    make(chan struct{}),
		bound:      make(chan struct{}),
	}
}

func (that *Session) ID() string {
	return that.id
}

// Closed - reports whether the session has been torn down.
func (that *Session) Closed() bool {
	return that.closed.Load()
}

// Bind - attaches the session to its current match. The matchmaker
// rebinds a session every time it is paired again.
func (that *Session) Bind(match Match) {
	that.mu.Lock()
	that.match = match
	that.mu.Unlock()

	that.boundOnce.Do(func() {
		close(that.bound)
	})
}

func (that *Session) currentMatch() Match {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.match
}

// Send - queues a message for the write loop. A full queue means the
// client stopped reading, so the session is dropped rather than letting
// a match broadcast block on it.
func (that *Session) Send(msg protocol.Message) error {
	if that.closed.Load() {
		return ErrSessionClosed
	}

	select {
	case that.outbound <- msg:
		return nil
	default:
		that.logger.Info("outbound queue overflow, dropping session")
		// teardown takes the match lock, which a broadcasting caller may hold
		go that.Close("slow consumer")

		return fmt.Errorf("%w: outbound queue is full", ErrSessionClosed)
	}
}

// Close - tears the session down once: the matchmaker forgets it, the
// bound match learns the client is gone, queued messages are flushed and
// the connection closed.
func (that *Session) Close(reason string) {
	that.closeOnce.Do(func() {
		that.closed.Store(true)
		that.logger.Info("closing session", "reason", reason)

		that.matchmaker.Remove(that)

		if match := that.currentMatch(); match != nil {
			match.HandleDisconnect(that.id)
		}

		close(that.stopped)
	})
}

// Run - serves the connection until it closes or ctx is canceled.
func (that *Session) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		that.writeLoop(ctx)
	}()

	that.readLoop(ctx)
	wg.Wait()
}

func (that *Session) readLoop(ctx context.Context) {
	log := that.logger.With("method", "readLoop")

	if err := that.handshake(); err != nil {
		log.Info("handshake failed", "error", err)
		return
	}

	for {
		msg, err := that.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, apperror.ErrMalformedMessage) {
				that.reject(err)
				that.Close("malformed message")
				return
			}

			log.Info("read failed", "error", err)
			that.Close("connection lost")

			return
		}

		if err = that.dispatch(ctx, msg); err != nil {
			log.Info("protocol violation", "error", err)
			that.Close("protocol violation")

			return
		}
	}
}

// handshake - demands a connect request as the very first frame and
// answers it with the session ID before queueing for an opponent.
func (that *Session) handshake() error {
	msg, err := that.conn.ReadMessage()
	if err != nil {
		if errors.Is(err, apperror.ErrMalformedMessage) {
			that.reject(err)
		}
		that.Close("handshake failed")

		return err
	}

	if err = validateConnect(msg); err != nil {
		that.reject(err)
		that.Close("handshake failed")

		return err
	}

	reply, err := protocol.NewMessage(protocol.ActionConnected, protocol.ConnectedPayload{Session: that.id})
	if err != nil {
		that.Close("handshake failed")
		return err
	}

	if err = that.Send(reply); err != nil {
		return fmt.Errorf("failed to confirm connect: %w", err)
	}

	that.matchmaker.Enqueue(that)

	return nil
}

func validateConnect(msg protocol.Message) error {
	if msg.Action != protocol.ActionConnect {
		return fmt.Errorf("%w: expected %q, got %q", apperror.ErrUnknownAction, protocol.ActionConnect, msg.Action)
	}

	var payload protocol.ConnectPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %s", apperror.ErrMalformedMessage, err)
	}

	if payload.Game != protocol.GameID {
		return fmt.Errorf("%w: unknown game %d", apperror.ErrMalformedMessage, payload.Game)
	}

	return nil
}

func (that *Session) dispatch(ctx context.Context, msg protocol.Message) error {
	switch msg.Action {
	case protocol.ActionTurn:
		return that.handleTurn(ctx, msg.Payload)
	default:
		err := fmt.Errorf("%w: %q", apperror.ErrUnknownAction, msg.Action)
		that.reject(err)

		return err
	}
}

func (that *Session) handleTurn(ctx context.Context, raw json.RawMessage) error {
	var payload protocol.TurnPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		err = fmt.Errorf("%w: %s", apperror.ErrMalformedMessage, err)
		that.reject(err)

		return err
	}

	match := that.awaitMatch(ctx)
	if match == nil {
		return ErrSessionClosed
	}

	err := match.HandleMove(that.id, payload.Cell)
	if err == nil {
		return nil
	}

	// rule violations go to the offender only, the connection stays open
	that.reject(err)

	return nil
}

// awaitMatch - blocks until the matchmaker binds a match and that match
// has started. Reads park here, so a turn sent early is processed right
// after the start goes out, never before it.
func (that *Session) awaitMatch(ctx context.Context) Match {
	match := that.currentMatch()
	if match == nil {
		select {
		case <-that.bound:
			match = that.currentMatch()
		case <-that.stopped:
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	// binding happens before the start announcement; moves must not
	// slip into that window
	select {
	case <-match.Started():
		return match
	case <-that.stopped:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// reject - reports an error to this client only.
func (that *Session) reject(cause error) {
	msg, err := protocol.NewMessage(protocol.ActionError, protocol.ErrorPayload{Reason: cause.Error()})
	if err != nil {
		that.logger.Error("failed to build error message", "error", err)
		return
	}

	if err = that.Send(msg); err != nil {
		that.logger.Info("failed to deliver error message", "error", err)
	}
}

func (that *Session) writeLoop(ctx context.Context) {
	log := that.logger.With("method", "writeLoop")

	defer func() {
		if err := that.conn.Close(); err != nil {
			log.Debug("failed to close conn", "error", err)
		}
	}()

	for {
		select {
		case msg := <-that.outbound:
			if err := that.conn.WriteMessage(msg); err != nil {
				log.Info("write failed", "error", err)
				that.Close("connection lost")

				return
			}
		case <-that.stopped:
			that.flush(log)
			return
		case <-ctx.Done():
			that.Close("server shutting down")
			return
		}
	}
}

// flush - delivers whatever was queued before the session closed, so a
// final error or verdict still reaches the client.
func (that *Session) flush(log *slog.Logger) {
	for {
		select {
		case msg := <-that.outbound:
			if err := that.conn.WriteMessage(msg); err != nil {
				log.Debug("failed to flush message", "error", err)
				return
			}
		default:
			return
		}
	}
}
