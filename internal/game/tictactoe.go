package game

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// boardSize is the number of cells on a tic-tac-toe board (3x3, row-major,
// top-left origin).
const boardSize = 9

// mark is the glyph placed in a cell.
type mark byte

const (
	markEmpty mark = 0
	markX     mark = 'X'
	markO     mark = 'O'
)

func markFor(r Role) mark {
	switch r {
	case RoleFirst:
		return markX
	case RoleSecond:
		return markO
	default:
		panic(fmt.Sprintf("game: markFor called on non-playing role %v", r))
	}
}

// Move is a parsed tic-tac-toe move: a zero-based cell index (0-8,
// row-major, top-left origin) and an optionally asserted mark.
type Move struct {
	Cell         int
	AssertedMark byte // 0 if the move did not assert a mark
}

// wins enumerates every triple of cell indices that forms a line.
var wins = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// TicTacToe is a Game implementation of ordinary 3x3 tic-tac-toe.
// RoleFirst plays X and moves first; RoleSecond plays O.
type TicTacToe struct {
	mu     sync.Mutex
	cells  [boardSize]mark
	turn   Role
	winner Role
	over   bool
}

// NewTicTacToe returns a fresh game with RoleFirst to move.
func NewTicTacToe() *TicTacToe {
	return &TicTacToe{turn: RoleFirst}
}

// ParseMove accepts a digit '1'-'9' selecting a cell, optionally followed
// by "<-X" or "<-O" asserting the mover's mark. Either form is accepted
// regardless of which form the eventual ApplyMove call actually needs.
func (g *TicTacToe) ParseMove(role Role, s string) (Move, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Move{}, fmt.Errorf("game: empty move")
	}

	digits := s
	var assertedMark byte
	if idx := strings.Index(s, "<-"); idx >= 0 {
		digits = s[:idx]
		suffix := s[idx+2:]
		if suffix != "X" && suffix != "O" {
			return Move{}, fmt.Errorf("game: invalid asserted mark %q", suffix)
		}
		assertedMark = suffix[0]
	}

	digits = strings.TrimSpace(digits)
	if len(digits) != 1 || digits[0] < '1' || digits[0] > '9' {
		return Move{}, fmt.Errorf("game: invalid cell selector %q", digits)
	}
	cellNum, err := strconv.Atoi(digits)
	if err != nil {
		return Move{}, fmt.Errorf("game: invalid cell selector %q: %w", digits, err)
	}

	return Move{Cell: cellNum - 1, AssertedMark: assertedMark}, nil
}

// ApplyMove validates and applies move on behalf of role.
func (g *TicTacToe) ApplyMove(role Role, move Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return fmt.Errorf("game: already over")
	}
	if role != g.turn {
		return fmt.Errorf("game: not %v's turn", role)
	}
	if move.Cell < 0 || move.Cell >= boardSize {
		return fmt.Errorf("game: cell %d out of range", move.Cell)
	}
	if g.cells[move.Cell] != markEmpty {
		return fmt.Errorf("game: cell %d already occupied", move.Cell)
	}

	wantMark := markFor(role)
	if move.AssertedMark != 0 && mark(move.AssertedMark) != wantMark {
		return fmt.Errorf("game: asserted mark %q does not match %v's mark %q", move.AssertedMark, role, wantMark)
	}

	g.cells[move.Cell] = wantMark

	if g.checkWin(wantMark) {
		g.over = true
		g.winner = role
		return nil
	}
	if g.boardFull() {
		g.over = true
		g.winner = RoleNone
		return nil
	}

	g.turn = role.Opponent()
	return nil
}

// Resign ends the game with role as the loser.
func (g *TicTacToe) Resign(role Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return fmt.Errorf("game: already over")
	}
	g.over = true
	g.winner = role.Opponent()
	return nil
}

// IsOver reports whether the game has concluded.
func (g *TicTacToe) IsOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

// Winner returns the winning role, or RoleNone for a draw.
func (g *TicTacToe) Winner() Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// Render renders the board as a human-readable 3x3 grid.
func (g *TicTacToe) Render() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			c := g.cells[row*3+col]
			if c == markEmpty {
				b.WriteByte('.')
			} else {
				b.WriteByte(byte(c))
			}
			if col < 2 {
				b.WriteByte('|')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *TicTacToe) checkWin(m mark) bool {
	for _, line := range wins {
		if g.cells[line[0]] == m && g.cells[line[1]] == m && g.cells[line[2]] == m {
			return true
		}
	}
	return false
}

func (g *TicTacToe) boardFull() bool {
	for _, c := range g.cells {
		if c == markEmpty {
			return false
		}
	}
	return true
}
