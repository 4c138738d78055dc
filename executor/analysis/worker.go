// Package analysis searches every position of recorded games and produces
// store.PositionRow values.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/rules"
	"github.com/brensch/chessmcts/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const SourcePGN = "pgn"

// ErrReplay marks games whose recorded moves cannot be replayed.
var ErrReplay = errors.New("replay failed")

// Position is one replayed position and the move the game continued with.
type Position struct {
	Ply    int
	Board  *rules.Board
	Played string
}

// Replay applies the recorded moves from the start position. The final
// position is included with an empty Played move.
func Replay(rec store.GameRecord) ([]Position, error) {
	start := rec.StartFEN
	if start == "" {
		start = rules.StartFEN
	}
	b, err := rules.FromFEN(start)
	if err != nil {
		return nil, err
	}

	out := make([]Position, 0, len(rec.Moves)+1)
	for i, mv := range rec.Moves {
		out = append(out, Position{Ply: i, Board: b, Played: mv})
		b, err = b.PushUCI(mv)
		if err != nil {
			return nil, fmt.Errorf("game %s ply %d: %w", rec.ID, i, err)
		}
	}
	out = append(out, Position{Ply: len(rec.Moves), Board: b})
	return out, nil
}

type Worker struct {
	Engine *mcts.Engine
	// Parallelism bounds concurrent searches; 0 means GOMAXPROCS.
	Parallelism int
	ModelPath   string
}

func (w *Worker) limit() int {
	if w.Parallelism > 0 {
		return w.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// AnalyzeGame searches every non-terminal position of rec. Positions are
// searched concurrently; each search owns its tree.
func (w *Worker) AnalyzeGame(ctx context.Context, rec store.GameRecord) ([]store.PositionRow, error) {
	positions, err := Replay(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReplay, err)
	}

	rows := make([]store.PositionRow, len(positions))
	keep := make([]bool, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit())
	for i, pos := range positions {
		if pos.Board.IsGameOver() {
			continue
		}
		g.Go(func() error {
			tree, err := w.Engine.SearchTree(gctx, pos.Board)
			if err != nil {
				return fmt.Errorf("ply %d: %w", pos.Ply, err)
			}
			row := RowFromTree(tree, pos.Board, pos.Ply)
			row.GameID = rec.ID
			row.PlayedMove = pos.Played
			row.Outcome = rec.Outcome()
			row.Result = rec.Result
			row.Source = SourcePGN
			row.ModelPath = w.ModelPath
			rows[i] = row
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := rows[:0]
	for i := range rows {
		if keep[i] {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// Run analyses games one after another and hands each game's rows to emit.
// Games already in done are skipped. A game that fails to replay is logged
// and skipped; search and emit errors stop the run.
func (w *Worker) Run(ctx context.Context, games []store.GameRecord, done *store.WrittenLog, emit func(gameID string, rows []store.PositionRow) error) error {
	for _, rec := range games {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done != nil && done.Has(rec.ID) {
			log.Debug().Str("game", rec.ID).Msg("already analysed, skipping")
			continue
		}

		rows, err := w.AnalyzeGame(ctx, rec)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, ErrReplay) {
				log.Warn().Err(err).Str("game", rec.ID).Msg("skipping unreplayable game")
				continue
			}
			return fmt.Errorf("analyse %s: %w", rec.ID, err)
		}
		if err := emit(rec.ID, rows); err != nil {
			return err
		}
		log.Info().Str("game", rec.ID).Int("positions", len(rows)).Msg("game analysed")
	}
	return nil
}
