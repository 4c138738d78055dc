package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Dataset is a DuckDB view named positions over every parquet batch under a
// set of output directories. Files still in a BatchWriter tmp/ directory are
// excluded.
type Dataset struct {
	db *sql.DB
}

func OpenDataset(roots []string) (*Dataset, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}

	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		glob := filepath.Join(root, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}
	if len(globs) == 0 {
		_ = db.Close()
		return nil, fmt.Errorf("dataset: no roots")
	}

	sqlText := `CREATE OR REPLACE VIEW positions AS
		SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
		WHERE NOT regexp_matches(filename, '/tmp/[^/]+$')`
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dataset view: %w", err)
	}
	return &Dataset{db: db}, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (d *Dataset) Close() error { return d.db.Close() }

// SourceSummary aggregates the rows of one source and result.
type SourceSummary struct {
	Source         string
	Result         string
	Games          int64
	Positions      int64
	AvgSimulations float64
	AvgWhiteValue  float64
}

// Summary groups positions by source and result, largest groups first.
func (d *Dataset) Summary(ctx context.Context) ([]SourceSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT source, result,
			COUNT(DISTINCT game_id),
			COUNT(*),
			AVG(simulations)::DOUBLE,
			AVG(white_value)::DOUBLE
		FROM positions
		GROUP BY source, result
		ORDER BY COUNT(*) DESC, source, result`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Result, &s.Games, &s.Positions, &s.AvgSimulations, &s.AvgWhiteValue); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GameSummary is one game's extent in the dataset.
type GameSummary struct {
	GameID    string
	Source    string
	Result    string
	Positions int64
	MaxPly    int32
	File      string
}

// Games lists up to limit games ordered by game ID.
func (d *Dataset) Games(ctx context.Context, limit int) ([]GameSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT game_id, any_value(source), any_value(result), COUNT(*), MAX(ply), any_value(filename)
		FROM positions
		GROUP BY game_id
		ORDER BY game_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.Source, &g.Result, &g.Positions, &g.MaxPly, &g.File); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
