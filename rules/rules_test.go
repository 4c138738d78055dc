package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/brensch/chessmcts/game"
)

// dumpBoard renders the position rank 8 first, for test logs.
func dumpBoard(b *Board) string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			p, ok := b.PieceAt(game.NewSquare(file, rank))
			if !ok {
				sb.WriteByte('.')
				continue
			}
			c := "?pnbrqk"[p.Type]
			if p.Color == game.White {
				c -= 'a' - 'A'
			}
			sb.WriteByte(c)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func mustFEN(t *testing.T, fen string) *Board {
	t.Helper()
	b, err := FromFEN(fen)
	if err != nil {
		t.Fatalf("FromFEN(%q): %v", fen, err)
	}
	return b
}

func TestStartPosition(t *testing.T) {
	b := New()
	if got := len(b.LegalMoves()); got != 20 {
		t.Fatalf("expected 20 legal moves, got %d\n%s", got, dumpBoard(b))
	}
	if b.Turn() != game.White {
		t.Errorf("expected white to move")
	}
	if b.IsGameOver() || b.IsCheckmate() {
		t.Errorf("start position must not be over")
	}
	want := game.CastlingRights{WhiteKingside: true, WhiteQueenside: true, BlackKingside: true, BlackQueenside: true}
	if got := b.CastlingRights(); got != want {
		t.Errorf("castling rights = %+v, want %+v", got, want)
	}
	p, ok := b.PieceAt(game.NewSquare(4, 0))
	if !ok || p.Type != game.King || p.Color != game.White {
		t.Errorf("e1 = %+v,%v, want white king", p, ok)
	}
	if _, ok := b.PieceAt(game.NewSquare(4, 3)); ok {
		t.Errorf("e4 should be empty")
	}
}

func TestPushDoesNotMutate(t *testing.T) {
	b := New()
	before := b.FEN()

	next, err := b.Push(game.Move{From: game.NewSquare(4, 1), To: game.NewSquare(4, 3)})
	if err != nil {
		t.Fatalf("push e2e4: %v", err)
	}
	if b.FEN() != before {
		t.Fatalf("receiver mutated: %s -> %s", before, b.FEN())
	}
	if next.Turn() != game.Black {
		t.Errorf("expected black to move after e2e4")
	}
	if _, ok := next.PieceAt(game.NewSquare(4, 3)); !ok {
		t.Errorf("expected a pawn on e4\n%s", dumpBoard(next.(*Board)))
	}
}

func TestPushIllegal(t *testing.T) {
	b := New()
	_, err := b.Push(game.Move{From: game.NewSquare(4, 1), To: game.NewSquare(4, 4)})
	if !errors.Is(err, game.ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestFromFENInvalid(t *testing.T) {
	tests := []string{
		"",
		"not a fen",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"rnbqqbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq z9 0 1",
		// Side not to move is in check.
		"k7/8/1K6/8/8/8/8/7Q w - - 0 1",
		"k7/1K6/8/8/8/8/8/8 w - - 0 1",
		"4k3/8/8/8/8/8/8/4QK2 w - - 0 1",
		// Pawns on the back ranks.
		"4k3/8/8/8/8/8/8/P3K3 w - - 0 1",
		"p3k3/8/8/8/8/8/8/4K3 w - - 0 1",
	}
	for _, fen := range tests {
		if _, err := FromFEN(fen); !errors.Is(err, game.ErrInvalidFEN) {
			t.Errorf("FromFEN(%q) err = %v, want ErrInvalidFEN", fen, err)
		}
	}
}

func TestFromFENFourFields(t *testing.T) {
	b := mustFEN(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -")
	if got := len(b.LegalMoves()); got != 20 {
		t.Fatalf("expected 20 legal moves, got %d", got)
	}
}

func TestTerminalKinds(t *testing.T) {
	tests := []struct {
		name      string
		fen       string
		over      bool
		checkmate bool
	}{
		{"fools mate", "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", true, true},
		{"stalemate", "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", true, false},
		{"bare kings", "8/8/4k3/8/8/3K4/8/8 w - - 0 1", true, false},
		{"king and knight", "8/8/4k3/8/8/3K4/6N1/8 w - - 0 1", true, false},
		{"same color bishops", "8/8/4k3/2b5/8/3K4/6B1/8 w - - 0 1", true, false},
		{"seventy five moves", "8/8/4k3/8/8/3K4/6R1/8 w - - 150 120", true, false},
		{"rook is enough", "8/8/4k3/8/8/3K4/6R1/8 w - - 0 1", false, false},
		{"middlegame", "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := mustFEN(t, tc.fen)
			if got := b.IsGameOver(); got != tc.over {
				t.Errorf("IsGameOver = %v, want %v\n%s", got, tc.over, dumpBoard(b))
			}
			if got := b.IsCheckmate(); got != tc.checkmate {
				t.Errorf("IsCheckmate = %v, want %v\n%s", got, tc.checkmate, dumpBoard(b))
			}
		})
	}
}

func TestFivefoldRepetition(t *testing.T) {
	b := New()
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	var err error
	for i := 0; i < 4; i++ {
		for _, mv := range shuffle {
			if b.IsGameOver() {
				t.Fatalf("game over too early after %d cycles", i)
			}
			b, err = b.PushUCI(mv)
			if err != nil {
				t.Fatalf("push %s: %v", mv, err)
			}
		}
	}
	if got := b.Repetitions(); got != 5 {
		t.Fatalf("expected 5 repetitions, got %d", got)
	}
	if !b.IsGameOver() {
		t.Fatalf("expected fivefold repetition to end the game")
	}
}

func TestPromotionMoves(t *testing.T) {
	b := mustFEN(t, "8/P7/8/8/8/8/k7/7K w - - 0 1")
	promos := map[game.PieceType]bool{}
	for _, m := range b.LegalMoves() {
		if m.From == game.NewSquare(0, 6) && m.To == game.NewSquare(0, 7) {
			promos[m.Promotion] = true
		}
	}
	for _, pt := range []game.PieceType{game.Knight, game.Bishop, game.Rook, game.Queen} {
		if !promos[pt] {
			t.Errorf("missing promotion to %d", pt)
		}
	}
	next, err := b.PushUCI("a7a8q")
	if err != nil {
		t.Fatalf("push a7a8q: %v", err)
	}
	p, ok := next.PieceAt(game.NewSquare(0, 7))
	if !ok || p.Type != game.Queen {
		t.Errorf("expected a queen on a8, got %+v\n%s", p, dumpBoard(next))
	}
}

func TestCastlingRightsUpdate(t *testing.T) {
	b := mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	next, err := b.PushUCI("e1g1")
	if err != nil {
		t.Fatalf("castle: %v", err)
	}
	got := next.CastlingRights()
	if got.WhiteKingside || got.WhiteQueenside {
		t.Errorf("white rights should be gone after castling: %+v", got)
	}
	if !got.BlackKingside || !got.BlackQueenside {
		t.Errorf("black rights should remain: %+v", got)
	}
}

func TestCastlingRightsCleanedOnParse(t *testing.T) {
	tests := []struct {
		fen  string
		want game.CastlingRights
	}{
		// White has no rooks.
		{"r3k2r/8/8/8/8/8/8/4K3 w KQkq - 0 1", game.CastlingRights{BlackKingside: true, BlackQueenside: true}},
		// White king off its start square.
		{"r3k2r/8/8/8/8/8/8/R2K3R w KQkq - 0 1", game.CastlingRights{BlackKingside: true, BlackQueenside: true}},
		// Only the h8 rook is missing.
		{"r3k3/8/8/8/8/8/8/R3K2R b KQkq - 0 1", game.CastlingRights{WhiteKingside: true, WhiteQueenside: true, BlackQueenside: true}},
		{"4k3/8/8/8/8/8/8/4K3 w KQkq - 0 1", game.CastlingRights{}},
	}
	for _, tt := range tests {
		b := mustFEN(t, tt.fen)
		if got := b.CastlingRights(); got != tt.want {
			t.Errorf("%s: rights = %+v, want %+v", tt.fen, got, tt.want)
		}
	}

	b := mustFEN(t, "r3k2r/8/8/8/8/8/8/4K3 w KQkq - 0 1")
	for _, m := range b.LegalMoves() {
		if s := m.String(); s == "e1c1" || s == "e1g1" {
			t.Errorf("castling move %s generated without a rook", s)
		}
	}
	if _, err := b.PushUCI("e1c1"); !errors.Is(err, game.ErrIllegalMove) {
		t.Errorf("e1c1 err = %v, want ErrIllegalMove", err)
	}
	if fields := strings.Fields(b.FEN()); fields[2] != "kq" {
		t.Errorf("castling field = %q, want kq", fields[2])
	}
}
