package convert

import (
	"bytes"
	"errors"
	"testing"

	"github.com/brensch/chessmcts/game"
	"github.com/brensch/chessmcts/rules"
)

func mustBoard(t testing.TB, fen string) *rules.Board {
	t.Helper()
	b, err := rules.FromFEN(fen)
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	return b
}

func planeSum(p Planes, c int) float32 {
	var s float32
	for _, v := range p.Data[c*PlaneSize : (c+1)*PlaneSize] {
		s += v
	}
	return s
}

func TestNewEncoderRejectsWidths(t *testing.T) {
	for _, n := range []int{0, 1, 11, 13, 16, 18, 119} {
		if _, err := NewEncoder(n); !errors.Is(err, ErrUnsupportedPlanes) {
			t.Errorf("NewEncoder(%d) err = %v, want ErrUnsupportedPlanes", n, err)
		}
	}
	for _, n := range []int{MinimalPlanes, ExtendedPlanes} {
		e, err := NewEncoder(n)
		if err != nil {
			t.Fatalf("NewEncoder(%d): %v", n, err)
		}
		if e.Channels() != n {
			t.Errorf("Channels() = %d, want %d", e.Channels(), n)
		}
	}
}

func TestEncodeStartPosition(t *testing.T) {
	enc, _ := NewEncoder(ExtendedPlanes)
	p := enc.Encode(rules.New())

	if p.Channels != ExtendedPlanes || len(p.Data) != ExtendedPlanes*64 {
		t.Fatalf("bad shape: channels=%d len=%d", p.Channels, len(p.Data))
	}

	counts := []float32{8, 2, 2, 2, 1, 1, 8, 2, 2, 2, 1, 1}
	for c, want := range counts {
		if got := planeSum(p, c); got != want {
			t.Errorf("plane %d sum = %v, want %v", c, got, want)
		}
	}
	// e1 is square 4: row 0, col 4.
	if p.Data[5*64+0*8+4] != 1 {
		t.Errorf("white king not at e1")
	}
	// e8 is square 60: row 7, col 4.
	if p.At(11, game.NewSquare(4, 7)) != 1 {
		t.Errorf("black king not at e8")
	}
	for c := 12; c < 17; c++ {
		if got := planeSum(p, c); got != 64 {
			t.Errorf("plane %d sum = %v, want 64", c, got)
		}
	}
}

func TestEncodeMinimalHasNoMetaPlanes(t *testing.T) {
	enc, _ := NewEncoder(MinimalPlanes)
	p := enc.Encode(rules.New())
	if len(p.Data) != MinimalPlanes*64 {
		t.Fatalf("len = %d", len(p.Data))
	}
}

func TestEncodeBlackToMoveNoCastling(t *testing.T) {
	enc, _ := NewEncoder(ExtendedPlanes)
	b := mustBoard(t, "4k3/8/8/8/8/8/8/R3K3 b Q - 0 1")
	p := enc.Encode(b)

	if got := planeSum(p, turnPlane); got != 0 {
		t.Errorf("turn plane sum = %v, want 0 for black to move", got)
	}
	want := []float32{0, 64, 0, 0}
	for i, w := range want {
		if got := planeSum(p, castlingPlane+i); got != w {
			t.Errorf("castling plane %d sum = %v, want %v", i, got, w)
		}
	}
	// No flip for black: the white rook stays on a1.
	if p.At(3, game.NewSquare(0, 0)) != 1 {
		t.Errorf("white rook should be on a1")
	}
}

func TestEncodeFresh(t *testing.T) {
	enc, _ := NewEncoder(MinimalPlanes)
	b := rules.New()
	p1 := enc.Encode(b)
	p1.Data[0] = 42
	p2 := enc.Encode(b)
	if p2.Data[0] == 42 {
		t.Fatalf("encode reused a buffer")
	}
}

func TestPlanesKey(t *testing.T) {
	enc, _ := NewEncoder(ExtendedPlanes)
	start := rules.New()
	next, err := start.PushUCI("e2e4")
	if err != nil {
		t.Fatal(err)
	}
	k1 := enc.Encode(start).Key()
	k2 := enc.Encode(start).Key()
	k3 := enc.Encode(next).Key()
	if !bytes.Equal(k1, k2) {
		t.Errorf("key not deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Errorf("different positions share a key")
	}
	if len(k1) != 1+8*ExtendedPlanes {
		t.Errorf("key length = %d", len(k1))
	}
}

func TestActionRoundTrip(t *testing.T) {
	for from := 0; from < 64; from++ {
		for to := 0; to < 64; to++ {
			if from == to {
				continue
			}
			m := game.Move{From: game.Square(from), To: game.Square(to)}
			idx := EncodeMove(m)
			if int(idx) != from*64+to {
				t.Fatalf("EncodeMove(%s) = %d", m, idx)
			}
			got, ok := DecodeMove(idx, nil)
			if !ok || got != m {
				t.Fatalf("DecodeMove(%d) = %s,%v, want %s", idx, got, ok, m)
			}
		}
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	for _, idx := range []ActionIndex{NoAction, -5, ActionSpace, ActionSpace + 1} {
		if m, ok := DecodeMove(idx, nil); ok || !m.IsZero() {
			t.Errorf("DecodeMove(%d) = %s,%v, want NoMove,false", idx, m, ok)
		}
	}
}

func TestDecodeInfersQueenPromotion(t *testing.T) {
	b := mustBoard(t, "8/P6k/8/8/8/8/p6K/8 w - - 0 1")
	a7 := game.NewSquare(0, 6)
	a8 := game.NewSquare(0, 7)

	m, ok := DecodeMove(EncodeMove(game.Move{From: a7, To: a8, Promotion: game.Knight}), b)
	if !ok || m.Promotion != game.Queen {
		t.Fatalf("white promotion = %s, want a7a8q", m)
	}

	a2 := game.NewSquare(0, 1)
	a1 := game.NewSquare(0, 0)
	m, _ = DecodeMove(EncodeMove(game.Move{From: a2, To: a1}), b)
	if m.Promotion != game.Queen {
		t.Fatalf("black promotion = %s, want a2a1q", m)
	}

	// Kings moving to the back rank are not promotions.
	h7 := game.NewSquare(7, 6)
	h8 := game.NewSquare(7, 7)
	m, _ = DecodeMove(EncodeMove(game.Move{From: h7, To: h8}), b)
	if m.Promotion != game.NoPieceType {
		t.Fatalf("king move got promotion %d", m.Promotion)
	}

	// Without a state no promotion is inferred.
	m, _ = DecodeMove(EncodeMove(game.Move{From: a7, To: a8}), nil)
	if m.Promotion != game.NoPieceType {
		t.Fatalf("nil state inferred a promotion")
	}
}

func BenchmarkEncode(b *testing.B) {
	enc, _ := NewEncoder(ExtendedPlanes)
	pos := mustBoard(b, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = enc.Encode(pos)
	}
}
