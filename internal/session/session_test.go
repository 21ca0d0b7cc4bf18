package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChelseaDH/game-server/internal/apperror"
	"github.com/ChelseaDH/game-server/internal/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type fakeMatchmaker struct {
	mu       sync.Mutex
	enqueued []*Session
	removed  []*Session
}

func (that *fakeMatchmaker) Enqueue(session *Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.enqueued = append(that.enqueued, session)
}

func (that *fakeMatchmaker) Remove(session *Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.removed = append(that.removed, session)
}

func (that *fakeMatchmaker) enqueuedCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.enqueued)
}

func (that *fakeMatchmaker) removedCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.removed)
}

type recordedMove struct {
	clientID string
	cell     int
}

type fakeMatch struct {
	started chan struct{}

	mu          sync.Mutex
	moves       []recordedMove
	err         error
	disconnects int
}

// newFakeMatch returns a match that already accepts moves.
func newFakeMatch() *fakeMatch {
	m := &fakeMatch{started: make(chan struct{})}
	m.start()

	return m
}

func (that *fakeMatch) start() {
	close(that.started)
}

func (that *fakeMatch) Started() <-chan struct{} {
	return that.started
}

func (that *fakeMatch) HandleMove(clientID string, cell int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.moves = append(that.moves, recordedMove{clientID: clientID, cell: cell})

	return that.err
}

func (that *fakeMatch) HandleDisconnect(_ string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.disconnects++
}

func (that *fakeMatch) setErr(err error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.err = err
}

func (that *fakeMatch) recordedMoves() []recordedMove {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]recordedMove{}, that.moves...)
}

func (that *fakeMatch) disconnectCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.disconnects
}

// newTestSession wires a session to one end of a pipe and hands the
// other end back as the client.
func newTestSession(t *testing.T) (*Session, *protocol.StreamConn, *fakeMatchmaker) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	require.NoError(t, clientEnd.SetDeadline(time.Now().Add(waitFor)))

	matchmaker := &fakeMatchmaker{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess := New(protocol.NewStreamConn(serverEnd), matchmaker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go sess.Run(ctx)

	t.Cleanup(func() {
		cancel()
		_ = clientEnd.Close()
	})

	return sess, protocol.NewStreamConn(clientEnd), matchmaker
}

func connect(t *testing.T, client *protocol.StreamConn) protocol.ConnectedPayload {
	t.Helper()

	msg, err := protocol.NewMessage(protocol.ActionConnect, protocol.ConnectPayload{Game: protocol.GameID})
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(msg))

	reply, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, protocol.ActionConnected, reply.Action)

	var payload protocol.ConnectedPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payload))

	return payload
}

func sendTurn(t *testing.T, client *protocol.StreamConn, cell int) {
	t.Helper()

	msg, err := protocol.NewMessage(protocol.ActionTurn, protocol.TurnPayload{Cell: cell})
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(msg))
}

func readError(t *testing.T, client *protocol.StreamConn) protocol.ErrorPayload {
	t.Helper()

	msg, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, protocol.ActionError, msg.Action)

	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	return payload
}

func TestSession_Handshake(t *testing.T) {
	t.Run("Confirms a valid connect and queues for an opponent", func(t *testing.T) {
		// Given: a fresh session
		sess, client, matchmaker := newTestSession(t)

		// When: the client sends a connect request
		payload := connect(t, client)

		// Then: the reply carries the session ID and the session is queued
		assert.Equal(t, sess.ID(), payload.Session)
		require.Eventually(t, func() bool {
			return matchmaker.enqueuedCount() == 1
		}, waitFor, tick)
	})

	t.Run("Rejects a first message that is not connect", func(t *testing.T) {
		// Given: a fresh session
		_, client, matchmaker := newTestSession(t)

		// When: the client opens with a turn instead of connect
		sendTurn(t, client, 0)

		// Then: it gets an error and the connection closes without queueing
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, apperror.ErrUnknownAction.Error())

		_, err := client.ReadMessage()
		require.Error(t, err)
		assert.Zero(t, matchmaker.enqueuedCount())
	})

	t.Run("Rejects a connect for an unknown game", func(t *testing.T) {
		// Given: a fresh session
		_, client, _ := newTestSession(t)

		// When: the client asks for a game this server does not host
		msg, err := protocol.NewMessage(protocol.ActionConnect, protocol.ConnectPayload{Game: 1})
		require.NoError(t, err)
		require.NoError(t, client.WriteMessage(msg))

		// Then: it gets an error and the connection closes
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, "unknown game")

		_, err = client.ReadMessage()
		require.Error(t, err)
	})

	t.Run("Rejects a connect without a payload", func(t *testing.T) {
		// Given: a fresh session
		_, client, _ := newTestSession(t)

		// When: the client sends a bare connect
		require.NoError(t, client.WriteMessage(protocol.Message{Action: protocol.ActionConnect}))

		// Then: it gets an error and the connection closes
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, apperror.ErrMalformedMessage.Error())

		_, err := client.ReadMessage()
		require.Error(t, err)
	})
}

func TestSession_Turns(t *testing.T) {
	t.Run("Parks a turn sent before the match starts", func(t *testing.T) {
		// Given: a connected session with no opponent yet
		sess, client, _ := newTestSession(t)
		connect(t, client)

		// When: the client moves before being paired, then a match binds
		sendTurn(t, client, 4)
		m := newFakeMatch()
		sess.Bind(m)

		// Then: the parked move reaches the match
		require.Eventually(t, func() bool {
			moves := m.recordedMoves()
			return len(moves) == 1 && moves[0] == recordedMove{clientID: sess.ID(), cell: 4}
		}, waitFor, tick)
	})

	t.Run("Keeps a parked turn until the bound match starts", func(t *testing.T) {
		// Given: a connected session and a match that is not yet started
		sess, client, _ := newTestSession(t)
		connect(t, client)
		m := &fakeMatch{started: make(chan struct{})}

		// When: the client moves and the pairing binds the match
		sendTurn(t, client, 4)
		sess.Bind(m)

		// Then: the move does not reach the match while it is being set up
		require.Never(t, func() bool {
			return len(m.recordedMoves()) > 0
		}, 100*time.Millisecond, tick)

		// And: it lands as soon as the match starts, without an error
		m.start()
		require.Eventually(t, func() bool {
			moves := m.recordedMoves()
			return len(moves) == 1 && moves[0] == recordedMove{clientID: sess.ID(), cell: 4}
		}, waitFor, tick)
		assert.False(t, sess.Closed())
	})

	t.Run("Returns rule violations to the offender and stays open", func(t *testing.T) {
		// Given: a connected session bound to a match that refuses the move
		sess, client, _ := newTestSession(t)
		connect(t, client)
		m := newFakeMatch()
		m.setErr(apperror.ErrNotYourTurn)
		sess.Bind(m)

		// When: the client moves out of turn
		sendTurn(t, client, 0)

		// Then: the error goes back to this client only
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, apperror.ErrNotYourTurn.Error())

		// And: the connection survives to carry the next move
		m.setErr(nil)
		sendTurn(t, client, 1)
		require.Eventually(t, func() bool {
			return len(m.recordedMoves()) == 2
		}, waitFor, tick)
	})

	t.Run("Rejects a turn with a malformed payload", func(t *testing.T) {
		// Given: a connected session bound to a match
		sess, client, _ := newTestSession(t)
		connect(t, client)
		sess.Bind(newFakeMatch())

		// When: the turn payload is not an object
		require.NoError(t, client.WriteMessage(protocol.Message{
			Action:  protocol.ActionTurn,
			Payload: json.RawMessage(`"four"`),
		}))

		// Then: it gets an error and the connection closes
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, apperror.ErrMalformedMessage.Error())

		_, err := client.ReadMessage()
		require.Error(t, err)
	})

	t.Run("Closes the session on an unknown action", func(t *testing.T) {
		// Given: a connected session
		sess, client, matchmaker := newTestSession(t)
		connect(t, client)
		m := newFakeMatch()
		sess.Bind(m)

		// When: the client sends an action the protocol does not know
		require.NoError(t, client.WriteMessage(protocol.Message{Action: "game:dance"}))

		// Then: it gets an error, the connection closes and the match is told
		payload := readError(t, client)
		assert.Contains(t, payload.Reason, apperror.ErrUnknownAction.Error())

		_, err := client.ReadMessage()
		require.Error(t, err)

		require.Eventually(t, func() bool {
			return m.disconnectCount() == 1 && matchmaker.removedCount() == 1
		}, waitFor, tick)
	})
}

func TestSession_Disconnect(t *testing.T) {
	t.Run("Tells the match when the connection drops", func(t *testing.T) {
		// Given: a connected session bound to a match
		sess, client, matchmaker := newTestSession(t)
		connect(t, client)
		m := newFakeMatch()
		sess.Bind(m)

		// When: the client drops the connection
		require.NoError(t, client.Close())

		// Then: the match hears about it exactly once
		require.Eventually(t, func() bool {
			return m.disconnectCount() == 1 && matchmaker.removedCount() == 1
		}, waitFor, tick)
		assert.True(t, sess.Closed())
	})

	t.Run("Drops a client that stops reading its messages", func(t *testing.T) {
		// Given: a connected session bound to a match, whose client no
		// longer drains the connection
		sess, client, matchmaker := newTestSession(t)
		connect(t, client)
		m := newFakeMatch()
		sess.Bind(m)

		// When: broadcasts keep queueing past what the outbound buffer holds
		msg := protocol.Message{Action: protocol.ActionBoardUpdated}
		for i := 0; i < outboundBuffer+8; i++ {
			_ = sess.Send(msg)
		}

		// Then: the session tears down and the match is told exactly once
		require.Eventually(t, func() bool {
			return m.disconnectCount() == 1 && matchmaker.removedCount() == 1
		}, waitFor, tick)
		assert.True(t, sess.Closed())
		assert.Equal(t, 1, m.disconnectCount())

		// And: further messages are refused outright
		require.ErrorIs(t, sess.Send(msg), ErrSessionClosed)
	})

	t.Run("Removes an unpaired session from the queue", func(t *testing.T) {
		// Given: a connected session still waiting for an opponent
		_, client, matchmaker := newTestSession(t)
		connect(t, client)
		require.Eventually(t, func() bool {
			return matchmaker.enqueuedCount() == 1
		}, waitFor, tick)

		// When: the client drops the connection
		require.NoError(t, client.Close())

		// Then: the matchmaker forgets the session
		require.Eventually(t, func() bool {
			return matchmaker.removedCount() == 1
		}, waitFor, tick)
	})
}
