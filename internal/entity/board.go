package entity

import (
	"fmt"

	"github.com/ChelseaDH/game-server/internal/apperror"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"

	PlayerX   = "X"
	PlayerO   = "O"
	PlayerTie = "-"

	EmptyCell = ""
)

const (
	OutcomeWin       = "win"
	OutcomeDraw      = "draw"
	OutcomeAbandoned = "abandoned"
)

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Board is a tic-tac-toe grid in row-major order, cell 0 top-left.
type Board [9]string

func NewBoard() Board {
	return Board{EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell}
}

// Apply - places a mark on the given cell.
// A rejected move leaves the board untouched.
func (that *Board) Apply(mark string, cell int) error {
	if cell < 0 || cell >= len(that) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that[cell] != EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	that[cell] = mark

	return nil
}

// Result - reports the winning mark, PlayerTie for a full board
// with no winner, or an empty string while the game can continue.
func (that Board) Result() string {
	for _, combo := range WinCombos {
		a, b, c := that[combo[0]], that[combo[1]], that[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	// the game will continue until all the squares are full
	for _, cell := range that {
		if cell == EmptyCell {
			return ""
		}
	}

	return PlayerTie
}

// Cells - returns a copy of the grid for serialization.
func (that Board) Cells() []string {
	cells := make([]string, len(that))
	copy(cells, that[:])

	return cells
}
