package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/ChelseaDH/game-server/internal/apperror"
	"github.com/ChelseaDH/game-server/internal/protocol"
)

// wsConn adapts a WebSocket connection to the game protocol. WebSocket
// frames already carry their own length, so messages travel as plain
// JSON texts without the stream prefix.
type wsConn struct {
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (that *wsConn) ReadMessage() (protocol.Message, error) {
	_, data, err := that.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, fmt.Errorf("failed to read frame: %w", err)
	}

	var msg protocol.Message
	if err = json.Unmarshal(data, &msg); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %s", apperror.ErrMalformedMessage, err)
	}

	return msg, nil
}

func (that *wsConn) WriteMessage(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err = that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (that *wsConn) Close() error {
	return that.conn.Close() //nolint: wrapcheck // nothing to add
}
