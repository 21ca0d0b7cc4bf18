package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/ChelseaDH/game-server/internal/apperror"
)

// MaxFrameSize is the largest payload a frame may carry, bounded by the
// two-byte length prefix.
const MaxFrameSize = 65535

// Conn is a message-oriented connection speaking the game protocol.
type Conn interface {
	ReadMessage() (Message, error)
	WriteMessage(msg Message) error
	Close() error
}

// StreamConn frames messages over a byte stream: a two-byte big-endian
// length prefix followed by that many bytes of JSON.
type StreamConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (that *StreamConn) ReadMessage() (Message, error) {
	var length uint16
	if err := binary.Read(that.reader, binary.BigEndian, &length); err != nil {
		return Message{}, fmt.Errorf("failed to read frame length: %w", err)
	}

	if length == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", apperror.ErrMalformedMessage)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(that.reader, payload); err != nil {
		return Message{}, fmt.Errorf("failed to read frame payload: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %s", apperror.ErrMalformedMessage, err)
	}

	return msg, nil
}

func (that *StreamConn) WriteMessage(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes", apperror.ErrMalformedMessage, len(payload))
	}

	// one buffered write so the prefix and payload hit the wire together
	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)

	if _, err = that.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (that *StreamConn) Close() error {
	return that.conn.Close() //nolint: wrapcheck // nothing to add
}
