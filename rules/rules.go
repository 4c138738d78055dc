// Package rules adapts the dragontoothmg move generator to game.State.
//
// Board values are immutable from the caller's point of view: Push copies the
// underlying bitboards (a plain struct) and the short repetition history.
package rules

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/brensch/chessmcts/game"
	"github.com/dylhunn/dragontoothmg"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	// python-chess style automatic draws, no claim needed.
	seventyFiveMoveHalfmoves = 150
	fivefoldRepetitions      = 5
)

const (
	lightSquares uint64 = 0x55AA55AA55AA55AA
	darkSquares  uint64 = 0xAA55AA55AA55AA55
)

// Board is a chess position plus the history needed for repetition draws.
type Board struct {
	pos      dragontoothmg.Board
	castling game.CastlingRights
	halfmove int
	// keys holds repetition keys since the last irreversible move, current last.
	keys []string

	legal []dragontoothmg.Move
}

// New returns the standard starting position.
func New() *Board {
	b, err := FromFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// FromFEN parses a FEN string. Four-field FENs get "0 1" clocks appended.
func FromFEN(fen string) (b *Board, err error) {
	fields := strings.Fields(fen)
	if len(fields) == 4 {
		fields = append(fields, "0", "1")
	}
	if err := validateFEN(fields); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", game.ErrInvalidFEN, fen, err)
	}
	fields[2] = cleanCastling(fields[0], fields[2])

	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("%w: %q: %v", game.ErrInvalidFEN, fen, r)
		}
	}()

	pos := dragontoothmg.ParseFen(strings.Join(fields, " "))
	if opponentInCheck(pos) {
		return nil, fmt.Errorf("%w: %q: side not to move is in check", game.ErrInvalidFEN, fen)
	}
	b = &Board{pos: pos}
	b.refresh(nil)
	return b, nil
}

func opponentInCheck(pos dragontoothmg.Board) bool {
	pos.Wtomove = !pos.Wtomove
	return pos.OurKingInCheck()
}

// cleanCastling drops rights whose king or rook is not on its start square.
func cleanCastling(placement, castling string) string {
	var grid [8][8]byte // [rank][file], rank 0 is the first rank
	for i, rank := range strings.Split(placement, "/") {
		file := 0
		for _, c := range rank {
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			grid[7-i][file] = byte(c)
			file++
		}
	}

	rights := []struct {
		flag       rune
		rank, rook int
		king, r    byte
	}{
		{'K', 0, 7, 'K', 'R'},
		{'Q', 0, 0, 'K', 'R'},
		{'k', 7, 7, 'k', 'r'},
		{'q', 7, 0, 'k', 'r'},
	}
	var out strings.Builder
	for _, cr := range rights {
		if !strings.ContainsRune(castling, cr.flag) {
			continue
		}
		if grid[cr.rank][4] == cr.king && grid[cr.rank][cr.rook] == cr.r {
			out.WriteRune(cr.flag)
		}
	}
	if out.Len() == 0 {
		return "-"
	}
	return out.String()
}

func validateFEN(fields []string) error {
	if len(fields) != 6 {
		return fmt.Errorf("expected 6 fields, got %d", len(fields))
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return fmt.Errorf("expected 8 ranks, got %d", len(ranks))
	}
	kings := map[rune]int{}
	for _, rank := range ranks {
		width := 0
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '8':
				width += int(c - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", c):
				width++
				if c == 'k' || c == 'K' {
					kings[c]++
				}
			default:
				return fmt.Errorf("bad piece %q", c)
			}
		}
		if width != 8 {
			return fmt.Errorf("rank %q has width %d", rank, width)
		}
	}
	if strings.ContainsAny(ranks[0]+ranks[7], "pP") {
		return fmt.Errorf("pawn on the first or last rank")
	}
	if kings['K'] != 1 || kings['k'] != 1 {
		return fmt.Errorf("expected one king per side")
	}
	if fields[1] != "w" && fields[1] != "b" {
		return fmt.Errorf("bad side to move %q", fields[1])
	}
	if fields[2] != "-" && strings.Trim(fields[2], "KQkq") != "" {
		return fmt.Errorf("bad castling field %q", fields[2])
	}
	if fields[3] != "-" {
		if _, ok := game.ParseSquare(fields[3]); !ok {
			return fmt.Errorf("bad en passant field %q", fields[3])
		}
	}
	for _, f := range fields[4:] {
		if n, err := strconv.Atoi(f); err != nil || n < 0 {
			return fmt.Errorf("bad clock %q", f)
		}
	}
	return nil
}

// refresh recomputes the derived metadata and legal moves after pos changed,
// so a Board is never written to again and can be shared between goroutines.
func (b *Board) refresh(prevKeys []string) {
	fields := strings.Fields(b.pos.ToFen())
	castling := ""
	if len(fields) > 2 {
		castling = fields[2]
	}
	b.castling = game.CastlingRights{
		WhiteKingside:  strings.Contains(castling, "K"),
		WhiteQueenside: strings.Contains(castling, "Q"),
		BlackKingside:  strings.Contains(castling, "k"),
		BlackQueenside: strings.Contains(castling, "q"),
	}
	b.halfmove = 0
	if len(fields) > 4 {
		b.halfmove, _ = strconv.Atoi(fields[4])
	}

	key := strings.Join(fields[:min(4, len(fields))], " ")
	if b.halfmove == 0 {
		b.keys = []string{key}
	} else {
		b.keys = make([]string, 0, len(prevKeys)+1)
		b.keys = append(b.keys, prevKeys...)
		b.keys = append(b.keys, key)
	}
	pos := b.pos
	b.legal = pos.GenerateLegalMoves()
}

func (b *Board) generate() []dragontoothmg.Move { return b.legal }

func (b *Board) LegalMoves() []game.Move {
	raw := b.generate()
	out := make([]game.Move, 0, len(raw))
	for i := range raw {
		dm := raw[i]
		out = append(out, fromDragon(dm))
	}
	return out
}

func (b *Board) Push(m game.Move) (game.State, error) {
	raw := b.generate()
	for i := range raw {
		dm := raw[i]
		if fromDragon(dm) != m {
			continue
		}
		next := &Board{pos: b.pos}
		next.pos.Apply(dm)
		next.refresh(b.keys)
		return next, nil
	}
	return nil, fmt.Errorf("%w: %s", game.ErrIllegalMove, m)
}

// PushUCI is Push for a UCI string.
func (b *Board) PushUCI(s string) (*Board, error) {
	m, err := game.ParseUCI(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrIllegalMove, err)
	}
	next, err := b.Push(m)
	if err != nil {
		return nil, err
	}
	return next.(*Board), nil
}

func (b *Board) inCheck() bool {
	pos := b.pos
	return pos.OurKingInCheck()
}

func (b *Board) IsCheckmate() bool {
	return len(b.generate()) == 0 && b.inCheck()
}

func (b *Board) IsStalemate() bool {
	return len(b.generate()) == 0 && !b.inCheck()
}

// IsGameOver reports checkmate, stalemate, insufficient material, the
// seventy-five-move rule and fivefold repetition.
func (b *Board) IsGameOver() bool {
	if len(b.generate()) == 0 {
		return true
	}
	if b.IsInsufficientMaterial() {
		return true
	}
	if b.halfmove >= seventyFiveMoveHalfmoves {
		return true
	}
	return b.Repetitions() >= fivefoldRepetitions
}

// Repetitions counts how often the current position occurred, itself included.
func (b *Board) Repetitions() int {
	if len(b.keys) == 0 {
		return 0
	}
	cur := b.keys[len(b.keys)-1]
	n := 0
	for _, k := range b.keys {
		if k == cur {
			n++
		}
	}
	return n
}

func (b *Board) IsInsufficientMaterial() bool {
	return b.insufficient(&b.pos.White, &b.pos.Black) && b.insufficient(&b.pos.Black, &b.pos.White)
}

func (b *Board) insufficient(us, them *dragontoothmg.Bitboards) bool {
	if us.Pawns|us.Rooks|us.Queens != 0 {
		return false
	}
	if us.Knights != 0 {
		return bits.OnesCount64(us.All) <= 2 && them.All&^them.Kings&^them.Queens == 0
	}
	if us.Bishops != 0 {
		bishops := us.Bishops | them.Bishops
		sameColor := bishops&darkSquares == 0 || bishops&lightSquares == 0
		return sameColor && us.Pawns|them.Pawns == 0 && us.Knights|them.Knights == 0
	}
	return true
}

func (b *Board) Turn() game.Color {
	if b.pos.Wtomove {
		return game.White
	}
	return game.Black
}

func (b *Board) PieceAt(sq game.Square) (game.Piece, bool) {
	mask := uint64(1) << sq
	if pt := pieceTypeAt(&b.pos.White, mask); pt != game.NoPieceType {
		return game.Piece{Type: pt, Color: game.White}, true
	}
	if pt := pieceTypeAt(&b.pos.Black, mask); pt != game.NoPieceType {
		return game.Piece{Type: pt, Color: game.Black}, true
	}
	return game.Piece{}, false
}

func pieceTypeAt(bb *dragontoothmg.Bitboards, mask uint64) game.PieceType {
	switch {
	case bb.All&mask == 0:
		return game.NoPieceType
	case bb.Pawns&mask != 0:
		return game.Pawn
	case bb.Knights&mask != 0:
		return game.Knight
	case bb.Bishops&mask != 0:
		return game.Bishop
	case bb.Rooks&mask != 0:
		return game.Rook
	case bb.Queens&mask != 0:
		return game.Queen
	case bb.Kings&mask != 0:
		return game.King
	}
	return game.NoPieceType
}

func (b *Board) CastlingRights() game.CastlingRights { return b.castling }

// HalfmoveClock is the number of plies since the last capture or pawn move.
func (b *Board) HalfmoveClock() int { return b.halfmove }

func (b *Board) FEN() string {
	pos := b.pos
	return pos.ToFen()
}

func (b *Board) String() string { return b.FEN() }

func fromDragon(dm dragontoothmg.Move) game.Move {
	m := game.Move{From: game.Square(dm.From()), To: game.Square(dm.To())}
	switch dm.Promote() {
	case dragontoothmg.Knight:
		m.Promotion = game.Knight
	case dragontoothmg.Bishop:
		m.Promotion = game.Bishop
	case dragontoothmg.Rook:
		m.Promotion = game.Rook
	case dragontoothmg.Queen:
		m.Promotion = game.Queen
	}
	return m
}

var _ game.State = (*Board)(nil)
