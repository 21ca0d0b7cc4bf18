package protocol

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChelseaDH/game-server/internal/apperror"
)

// newPipe wires a StreamConn to one end of an in-memory pipe and hands
// the raw other end back.
func newPipe(t *testing.T) (*StreamConn, net.Conn) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, serverEnd.SetDeadline(deadline))
	require.NoError(t, clientEnd.SetDeadline(deadline))

	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})

	return NewStreamConn(serverEnd), clientEnd
}

func TestStreamConn_RoundTrip(t *testing.T) {
	server, clientEnd := newPipe(t)
	client := NewStreamConn(clientEnd)

	// Given: a message with a payload
	sent, err := NewMessage(ActionBoardUpdated, BoardUpdatedPayload{
		Cells:  []string{"X", "", "", "", "O", "", "", "", ""},
		Status: "ongoing",
		Turn:   "X",
	})
	require.NoError(t, err)

	// When: it travels through the framing and back
	go func() {
		_ = server.WriteMessage(sent)
	}()

	received, err := client.ReadMessage()

	// Then: the decoded message matches what was written
	require.NoError(t, err)
	assert.Equal(t, sent.Action, received.Action)
	assert.JSONEq(t, string(sent.Payload), string(received.Payload))
}

func TestStreamConn_FrameLayout(t *testing.T) {
	server, clientEnd := newPipe(t)

	msg, err := NewMessage(ActionConnected, ConnectedPayload{Session: "abc"})
	require.NoError(t, err)

	go func() {
		_ = server.WriteMessage(msg)
	}()

	// When: the raw bytes are read off the wire
	header := make([]byte, 2)
	_, err = io.ReadFull(clientEnd, header)
	require.NoError(t, err)

	body := make([]byte, binary.BigEndian.Uint16(header))
	_, err = io.ReadFull(clientEnd, body)
	require.NoError(t, err)

	// Then: the prefix counts exactly the JSON body that follows
	var decoded Message
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, ActionConnected, decoded.Action)
}

func TestStreamConn_ReadMessage(t *testing.T) {
	t.Run("Rejects an empty frame", func(t *testing.T) {
		server, clientEnd := newPipe(t)

		go func() {
			_, _ = clientEnd.Write([]byte{0x00, 0x00})
		}()

		_, err := server.ReadMessage()

		assert.ErrorIs(t, err, apperror.ErrMalformedMessage)
	})

	t.Run("Rejects a frame that is not JSON", func(t *testing.T) {
		server, clientEnd := newPipe(t)

		go func() {
			_, _ = clientEnd.Write([]byte{0x00, 0x03, 'a', 'b', 'c'})
		}()

		_, err := server.ReadMessage()

		assert.ErrorIs(t, err, apperror.ErrMalformedMessage)
	})

	t.Run("Treats a truncated frame as a transport failure", func(t *testing.T) {
		server, clientEnd := newPipe(t)

		// Given: a frame announcing more bytes than ever arrive
		go func() {
			_, _ = clientEnd.Write([]byte{0x00, 0x0A, 'x'})
			_ = clientEnd.Close()
		}()

		_, err := server.ReadMessage()

		// Then: the error is a broken connection, not a protocol offence
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperror.ErrMalformedMessage)
	})
}

func TestStreamConn_WriteMessage_TooLarge(t *testing.T) {
	server, _ := newPipe(t)

	// Given: a payload the two-byte prefix cannot describe
	oversized := Message{
		Action:  ActionBoardUpdated,
		Payload: json.RawMessage(`"` + strings.Repeat("x", MaxFrameSize) + `"`),
	}

	// Then: the write fails before touching the wire
	err := server.WriteMessage(oversized)
	assert.ErrorIs(t, err, apperror.ErrMalformedMessage)
}
