package apperror

import "errors"

var (
	ErrMatchFinished   = errors.New("match is already finished")
	ErrMatchNotStarted = errors.New("match is not started")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrInvalidCell     = errors.New("invalid cell index")
	ErrCellOccupied    = errors.New("cell is already occupied")

	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownAction    = errors.New("unknown action")
)
