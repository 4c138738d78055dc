// Command bestmove searches one position and prints the chosen move.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brensch/chessmcts/cmd/internal/cli"
	"github.com/brensch/chessmcts/rules"
	"github.com/rs/zerolog/log"
)

func main() {
	fen := flag.String("fen", cli.GetEnvOrDefault("CHESSMCTS_FEN", rules.StartFEN), "Position to search")
	top := flag.Int("top", 5, "Number of root moves to print")
	asJSON := flag.Bool("json", false, "Print the root summary as JSON instead of text")
	ef := cli.RegisterEngineFlags(flag.CommandLine)
	flag.Parse()

	if err := ef.SetupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	board, err := rules.FromFEN(*fen)
	if err != nil {
		log.Fatal().Err(err).Msg("bad position")
	}

	backend, engine, err := ef.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := engine.SearchTree(ctx, board)
	if err != nil && (tree == nil || tree.Root().Visits == 0) {
		backend.Close()
		log.Fatal().Err(err).Str("fen", board.FEN()).Msg("search failed")
	}
	if err != nil {
		log.Warn().Err(err).Int("simulations", tree.Root().Visits).Msg("search interrupted, reporting partial tree")
	}

	summary := tree.Summary(board)
	if hits, misses := backend.CacheStats(); hits+misses > 0 {
		log.Debug().Int64("hits", hits).Int64("misses", misses).Msg("eval cache")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatal().Err(err).Msg("encode summary")
		}
		return
	}

	best := "(none)"
	if len(summary.Children) > 0 {
		best = summary.Children[0].Move
	}
	fmt.Printf("bestmove %s\n", best)
	fmt.Printf("value %+.4f white %+.4f visits %d\n", summary.Value, summary.WhiteValue, summary.Visits)
	for _, c := range summary.Top(*top) {
		fmt.Printf("  %-6s n=%-6d share=%5.1f%% q=%+.3f p=%.3f\n", c.Move, c.Visits, c.Share*100, c.Q, c.Prior)
	}
}
