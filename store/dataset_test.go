package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDataset(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteBatchParquetAtomic(dir, sampleRows()); err != nil {
		t.Fatal(err)
	}
	selfplay := []PositionRow{{
		GameID: "selfplay_1_0", Ply: 0, FEN: "8/8/8/8/8/8/8/K6k w - - 0 1", SideToMove: "white",
		PlayedMove: "a1a2", BestMove: "a1a2", Simulations: 32, Result: "*", Source: "selfplay",
	}}
	if _, err := WriteBatchParquetAtomic(filepath.Join(dir, "selfplay"), selfplay); err != nil {
		t.Fatal(err)
	}
	// An unfinished batch must not be counted.
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := WritePositionsParquet(filepath.Join(dir, "tmp", "batch_partial.parquet"), sampleRows()); err != nil {
		t.Fatal(err)
	}

	ds, err := OpenDataset([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	ctx := context.Background()
	summary, err := ds.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	pgn := summary[0]
	if pgn.Source != "pgn" || pgn.Result != "1-0" || pgn.Games != 1 || pgn.Positions != 2 || pgn.AvgSimulations != 64 {
		t.Fatalf("pgn summary = %+v", pgn)
	}
	if summary[1].Source != "selfplay" || summary[1].Positions != 1 {
		t.Fatalf("selfplay summary = %+v", summary[1])
	}

	games, err := ds.Games(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 2 || games[0].GameID != "g1" || games[0].MaxPly != 1 || games[1].GameID != "selfplay_1_0" {
		t.Fatalf("games = %+v", games)
	}
}

func TestOpenDatasetNoRoots(t *testing.T) {
	if _, err := OpenDataset([]string{" "}); err == nil {
		t.Fatalf("expected error")
	}
}
