package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const positionSchema = "position_row_v1"

// PositionRow is one searched position from an analysed or self-played game.
//
// Value is the root value from the side to move; WhiteValue is the same
// number from white's point of view. PolicyIndex/PolicyProbs hold the sparse
// root visit distribution over action indices (from*64 + to).
//
// Outcome is the final result from white's perspective (1, 0, -1), or 0 when
// the game is unfinished or the result is unknown.
type PositionRow struct {
	GameID     string `parquet:"game_id,dict"`
	Ply        int32  `parquet:"ply"`
	FEN        string `parquet:"fen"`
	SideToMove string `parquet:"side_to_move,dict"`

	PlayedMove string `parquet:"played_move,optional"`
	BestMove   string `parquet:"best_move"`

	Value       float32 `parquet:"value"`
	WhiteValue  float32 `parquet:"white_value"`
	Simulations int32   `parquet:"simulations"`

	PolicyIndex []int32   `parquet:"policy_index"`
	PolicyProbs []float32 `parquet:"policy_probs"`

	Outcome float32 `parquet:"outcome"`
	Result  string  `parquet:"result,dict"`
	Source  string  `parquet:"source,dict"`

	// ModelPath is the resolved path of the model used for the search.
	ModelPath string `parquet:"model_path,dict,optional"`

	// MCTSRootJSON stores the root summary: move, visits, Q and prior per child.
	MCTSRootJSON []byte `parquet:"mcts_root_json,optional,zstd"`
}

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("mcts_root_json"),
		parquet.KeyValueMetadata("schema", positionSchema),
	}
}

// WritePositionsParquet writes rows to outPath via a temp file and rename.
func WritePositionsParquet(outPath string, rows []PositionRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteBatchParquetAtomic writes a Parquet file into outDir/tmp and then
// atomically moves it into outDir, so readers never observe partial files.
func WriteBatchParquetAtomic(outDir string, rows []PositionRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadPositionsParquet loads every row of a file written by this package.
func ReadPositionsParquet(path string) ([]PositionRow, error) {
	rows, err := parquet.ReadFile[PositionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
