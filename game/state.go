// Package game defines the core chess types shared by the rules adapter,
// the encoder and the search.
//
// The search only ever talks to a position through the State interface, so
// any rules engine can back it. States are treated as immutable values: Push
// returns a new state and leaves the receiver untouched, which lets MCTS keep
// cheap scratch copies per simulation.
package game

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid FEN")
)

type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// PieceType values match the usual ordering (pawn first, king last).
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceLetters = [...]byte{' ', 'p', 'n', 'b', 'r', 'q', 'k'}

type Piece struct {
	Type  PieceType
	Color Color
}

// Square is 0..63 with a1=0, h1=7, a8=56.
type Square uint8

const NumSquares = 64

func NewSquare(file, rank int) Square { return Square(rank*8 + file) }

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare parses algebraic notation such as "e4".
func ParseSquare(s string) (Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), true
}

// Move is a from/to pair with an optional promotion piece.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

// NoMove is returned where a move is absent.
var NoMove = Move{}

func (m Move) IsZero() bool { return m == NoMove }

// String returns UCI notation, e.g. "e2e4" or "e7e8q".
func (m Move) String() string {
	if m.IsZero() {
		return "0000"
	}
	s := m.From.String() + m.To.String()
	if m.Promotion != NoPieceType && int(m.Promotion) < len(pieceLetters) {
		s += string(pieceLetters[m.Promotion])
	}
	return s
}

// ParseUCI parses a move in UCI notation.
func ParseUCI(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return NoMove, fmt.Errorf("bad uci move length: %q", s)
	}
	from, ok := ParseSquare(s[0:2])
	if !ok {
		return NoMove, fmt.Errorf("bad uci from square: %q", s)
	}
	to, ok := ParseSquare(s[2:4])
	if !ok {
		return NoMove, fmt.Errorf("bad uci to square: %q", s)
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		switch s[4] {
		case 'n':
			m.Promotion = Knight
		case 'b':
			m.Promotion = Bishop
		case 'r':
			m.Promotion = Rook
		case 'q':
			m.Promotion = Queen
		default:
			return NoMove, fmt.Errorf("bad uci promotion: %q", s)
		}
	}
	return m, nil
}

type CastlingRights struct {
	WhiteKingside  bool
	WhiteQueenside bool
	BlackKingside  bool
	BlackQueenside bool
}

// State is everything the search needs from a rules engine.
type State interface {
	LegalMoves() []Move
	// Push returns a new state with m applied. The receiver is not modified.
	// It returns ErrIllegalMove if m is not legal here.
	Push(m Move) (State, error)
	IsGameOver() bool
	IsCheckmate() bool
	Turn() Color
	PieceAt(sq Square) (Piece, bool)
	CastlingRights() CastlingRights
}
