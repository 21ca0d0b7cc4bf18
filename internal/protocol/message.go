package protocol

import (
	"encoding/json"
	"fmt"
)

// GameID identifies the game a connecting client asks to join.
// The server hosts exactly one game, so the value is fixed.
const GameID = 12345

// Client actions.
const (
	ActionConnect = "connect"
	ActionTurn    = "game:turn"
)

// Server actions.
const (
	ActionConnected    = "connected"
	ActionMatchStarted = "game:started"
	ActionBoardUpdated = "game:board"
	ActionMatchEnded   = "game:ended"
	ActionError        = "error"
)

// Message is the envelope every frame carries, an action name plus
// an action-specific payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage - builds a message with the payload marshaled in place.
func NewMessage(action string, payload any) (Message, error) {
	if payload == nil {
		return Message{Action: action}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %q payload: %w", action, err)
	}

	return Message{Action: action, Payload: raw}, nil
}

type ConnectPayload struct {
	Game int `json:"game"`
}

type ConnectedPayload struct {
	Session string `json:"session"`
}

type TurnPayload struct {
	Cell int `json:"cell"`
}

type MatchStartedPayload struct {
	Match    string `json:"match"`
	Mark     string `json:"mark"`
	Opponent string `json:"opponent"`
}

type BoardUpdatedPayload struct {
	Cells  []string `json:"cells"`
	Status string   `json:"status"`
	Turn   string   `json:"turn,omitempty"`
}

type MatchEndedPayload struct {
	Outcome     string `json:"outcome"`
	Winner      string `json:"winner,omitempty"`
	AbandonedBy string `json:"abandoned_by,omitempty"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}
