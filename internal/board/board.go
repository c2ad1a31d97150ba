// Package board implements the Connect Four grid: a 6x7 board kept as a flat
// 42-character string, row-major from the top row.
package board

import (
	"fmt"
	"strings"
)

const (
	Rows    = 6
	Columns = 7
	Cells   = Rows * Columns
	// WinLength is the run length that decides a game.
	WinLength = 4
)

const (
	cellEmpty byte = '0'
	cellOne   byte = '1'
	cellTwo   byte = '2'
)

// Player is a seat number, 1 or 2.
type Player int

const (
	PlayerOne Player = 1
	PlayerTwo Player = 2
)

// Valid reports whether p is a seat number.
func (p Player) Valid() bool { return p == PlayerOne || p == PlayerTwo }

// Other returns the opposing seat.
func (p Player) Other() Player {
	if p == PlayerOne {
		return PlayerTwo
	}
	return PlayerOne
}

func (p Player) symbol() byte {
	if p == PlayerOne {
		return cellOne
	}
	return cellTwo
}

// Board is an immutable encoded grid. The encoding is also the storage and
// wire format.
type Board string

// Empty is the starting position.
var Empty = Board(strings.Repeat(string(cellEmpty), Cells))

// Parse validates s and returns it as a Board.
func Parse(s string) (Board, error) {
	b := Board(s)
	if err := b.Validate(); err != nil {
		return "", err
	}
	return b, nil
}

// Validate checks the length and alphabet.
func (b Board) Validate() error {
	if len(b) != Cells {
		return fmt.Errorf("board: length %d, want %d", len(b), Cells)
	}
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case cellEmpty, cellOne, cellTwo:
		default:
			return fmt.Errorf("board: invalid symbol %q at %d", b[i], i)
		}
	}
	return nil
}

func index(row, col int) int { return row*Columns + col }

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Columns
}

// At returns the seat occupying (row, col), or 0 when the cell is empty or
// out of range.
func (b Board) At(row, col int) Player {
	if !inBounds(row, col) || len(b) != Cells {
		return 0
	}
	switch b[index(row, col)] {
	case cellOne:
		return PlayerOne
	case cellTwo:
		return PlayerTwo
	}
	return 0
}

// DropRow returns the lowest empty row of col. ok is false when col is out of
// range or the column is full.
func (b Board) DropRow(col int) (row int, ok bool) {
	if col < 0 || col >= Columns || len(b) != Cells {
		return 0, false
	}
	for r := Rows - 1; r >= 0; r-- {
		if b[index(r, col)] == cellEmpty {
			return r, true
		}
	}
	return 0, false
}

// ApplyMove drops p's disc into col and returns the new board together with
// the landing row. ok is false for a malformed board, a bad seat, or a full
// or out-of-range column. b itself is never modified.
func (b Board) ApplyMove(col int, p Player) (next Board, row int, ok bool) {
	if !p.Valid() || b.Validate() != nil {
		return b, 0, false
	}
	row, ok = b.DropRow(col)
	if !ok {
		return b, 0, false
	}
	buf := []byte(b)
	buf[index(row, col)] = p.symbol()
	next = Board(buf)
	if next.Validate() != nil {
		return b, 0, false
	}
	return next, row, true
}

var axes = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal down-left
}

// CheckWin reports whether the disc at (row, col) completes a run of
// WinLength for p along any axis.
func (b Board) CheckWin(row, col int, p Player) bool {
	if !p.Valid() || b.At(row, col) != p {
		return false
	}
	for _, ax := range axes {
		n := 1 + b.run(row, col, ax[0], ax[1], p) + b.run(row, col, -ax[0], -ax[1], p)
		if n >= WinLength {
			return true
		}
	}
	return false
}

func (b Board) run(row, col, dr, dc int, p Player) int {
	n := 0
	for r, c := row+dr, col+dc; inBounds(r, c) && b.At(r, c) == p; r, c = r+dr, c+dc {
		n++
	}
	return n
}

// IsFull reports whether no empty cell remains.
func (b Board) IsFull() bool {
	return strings.IndexByte(string(b), cellEmpty) < 0
}

// Count returns how many discs are on the board.
func (b Board) Count() int {
	n := 0
	for i := 0; i < len(b); i++ {
		if b[i] != cellEmpty {
			n++
		}
	}
	return n
}

func (b Board) String() string { return string(b) }
