package store

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const samplePGN = `[Event "Scholar"]
[Site "?"]
[Date "2024.01.01"]
[White "A"]
[Black "B"]
[Result "1-0"]

1. e4 e5 2. Bc4 Nc6 3. Qh5 Nf6 4. Qxf7# 1-0

[Event "Promotion"]
[Site "https://lichess.org/abcd1234"]
[Result "*"]
[SetUp "1"]
[FEN "8/P6k/8/8/8/8/8/K7 w - - 0 1"]

1. a8=Q *
`

func TestReadPGN(t *testing.T) {
	games, err := ReadPGN(strings.NewReader(samplePGN))
	if err != nil {
		t.Fatalf("ReadPGN: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}

	g := games[0]
	want := []string{"e2e4", "e7e5", "f1c4", "b8c6", "d1h5", "g8f6", "h5f7"}
	if !reflect.DeepEqual(g.Moves, want) {
		t.Errorf("moves = %v, want %v", g.Moves, want)
	}
	if g.Outcome() != 1 || g.White != "A" || g.Event != "Scholar" {
		t.Errorf("unexpected header data: %+v", g)
	}
	if !strings.HasPrefix(g.StartFEN, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq") {
		t.Errorf("start FEN = %q", g.StartFEN)
	}
	if !strings.HasPrefix(g.ID, "pgn_") {
		t.Errorf("expected hashed id, got %q", g.ID)
	}

	p := games[1]
	if p.ID != "https://lichess.org/abcd1234" {
		t.Errorf("id = %q, want the site URL", p.ID)
	}
	if !strings.HasPrefix(p.StartFEN, "8/P6k/8/8/8/8/8/K7 w") {
		t.Errorf("start FEN = %q", p.StartFEN)
	}
	if !reflect.DeepEqual(p.Moves, []string{"a7a8q"}) {
		t.Errorf("moves = %v", p.Moves)
	}
	if p.Outcome() != 0 {
		t.Errorf("unfinished game outcome = %v", p.Outcome())
	}
}

func TestReadPGNStableIDs(t *testing.T) {
	a, err := ReadPGN(strings.NewReader(samplePGN))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ReadPGN(strings.NewReader(samplePGN))
	if err != nil {
		t.Fatal(err)
	}
	if a[0].ID != b[0].ID {
		t.Fatalf("ids differ across reads: %s vs %s", a[0].ID, b[0].ID)
	}
}

func sampleRows() []PositionRow {
	return []PositionRow{
		{
			GameID: "g1", Ply: 0, FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
			SideToMove: "white", PlayedMove: "e2e4", BestMove: "d2d4",
			Value: 0.1, WhiteValue: 0.1, Simulations: 64,
			PolicyIndex: []int32{795, 859}, PolicyProbs: []float32{0.25, 0.75},
			Outcome: 1, Result: "1-0", Source: "pgn",
			MCTSRootJSON: []byte(`{"n":64}`),
		},
		{
			GameID: "g1", Ply: 1, FEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
			SideToMove: "black", BestMove: "e7e5",
			Value: -0.2, WhiteValue: 0.2, Simulations: 64,
			PolicyIndex: []int32{3300}, PolicyProbs: []float32{1},
			Outcome: 1, Result: "1-0", Source: "pgn",
		},
	}
}

func TestWritePositionsParquetRoundTrip(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "rows.parquet")
	rows := sampleRows()
	if err := WritePositionsParquet(out, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("tmp file left behind")
	}
	got, err := ReadPositionsParquet(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows", len(got))
	}
	if got[0].PlayedMove != "e2e4" || got[1].WhiteValue != 0.2 || !reflect.DeepEqual(got[0].PolicyIndex, rows[0].PolicyIndex) {
		t.Errorf("rows changed in round trip: %+v", got)
	}
	if string(got[0].MCTSRootJSON) != `{"n":64}` {
		t.Errorf("root json = %q", got[0].MCTSRootJSON)
	}
}

func TestWriteBatchParquetAtomic(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteBatchParquetAtomic(dir, sampleRows())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("batch written to %s", path)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(entries) != 0 {
		t.Errorf("tmp dir not empty: %d entries", len(entries))
	}
}

func TestBatchWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	rows := sampleRows()
	if err := w.WriteGame(rows[:1]); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteGame(rows[1:]); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteGame(nil); err != nil {
		t.Fatal(err)
	}
	path, n, games, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || games != 2 {
		t.Errorf("rows=%d games=%d", n, games)
	}
	got, err := ReadPositionsParquet(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d rows", len(got))
	}
	if err := w.WriteGame(rows); err == nil {
		t.Errorf("write after finalize should fail")
	}
}

func TestBatchWriterEmpty(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	path, n, _, err := w.Finalize()
	if err != nil || path != "" || n != 0 {
		t.Fatalf("empty finalize = %q,%d,%v", path, n, err)
	}
	if _, err := os.Stat(w.TmpPath()); !os.IsNotExist(err) {
		t.Errorf("tmp file should be removed")
	}
}

func TestWrittenLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "written.log")
	l, err := OpenWrittenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.AddMany([]string{"a", "b", "", "a"}); err != nil {
		t.Fatal(err)
	}
	if !l.Has("a") || !l.Has("b") || l.Has("c") || l.Count() != 2 {
		t.Fatalf("unexpected log contents")
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.AddMany([]string{"c"}); err == nil {
		t.Fatalf("add after close should fail")
	}

	// Torn trailing line from a crash is tolerated.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("  \npartial")
	f.Close()

	l2, err := OpenWrittenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if !l2.Has("a") || !l2.Has("b") || l2.Count() != 3 {
		t.Fatalf("reopened log count = %d", l2.Count())
	}
}
