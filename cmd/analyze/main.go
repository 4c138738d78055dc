// Command analyze searches every position of the games in PGN files and
// writes one parquet row per position.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/chessmcts/cmd/internal/cli"
	"github.com/brensch/chessmcts/executor/analysis"
	"github.com/brensch/chessmcts/store"
	"github.com/rs/zerolog/log"
)

func main() {
	outDir := flag.String("out-dir", cli.GetEnvOrDefault("OUT_DIR", "data/analysis"), "Directory to write batch .parquet files")
	logPath := flag.String("log-path", cli.GetEnvOrDefault("WRITTEN_LOG", "data/analysis/written_games.log"), "Append-only log of game IDs already written")
	flushGames := flag.Int("flush-games", cli.GetEnvIntOrDefault("FLUSH_GAMES", 100), "Flush when buffered games reaches this count")
	parallelism := flag.Int("parallelism", cli.GetEnvIntOrDefault("PARALLELISM", 0), "Concurrent searches per game; 0 means GOMAXPROCS")
	ef := cli.RegisterEngineFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] games.pgn...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := ef.SetupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	games, err := readGames(flag.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read PGN")
	}

	written, err := store.OpenWrittenLog(*logPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open written log")
	}
	defer written.Close()

	backend, engine, err := ef.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	defer backend.Close()

	log.Info().Int("games", len(games)).Int("already_written", written.Count()).Str("out_dir", *outDir).
		Int("sims", ef.Simulations).Msg("starting analysis")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &sink{outDir: *outDir, flushGames: *flushGames, written: written}
	w := &analysis.Worker{Engine: engine, Parallelism: *parallelism, ModelPath: ef.Model}

	start := time.Now()
	runErr := w.Run(ctx, games, written, s.add)
	if err := s.flush("final"); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}

	hits, misses := backend.CacheStats()
	ev := log.Info().Int("games", s.games).Int("rows", s.rows).Int("batches", s.batches).
		Dur("elapsed", time.Since(start)).Int64("cache_hits", hits).Int64("cache_misses", misses)
	if st, ok := backend.Stats(); ok {
		ev = ev.Float64("avg_batch", st.AvgBatchSize).Float64("avg_run_ms", st.AvgRunMs)
	}
	ev.Msg("analysis complete")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		backend.Close()
		written.Close()
		log.Fatal().Err(runErr).Msg("analysis stopped")
	}
}

func readGames(paths []string) ([]store.GameRecord, error) {
	var games []store.GameRecord
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		recs, err := store.ReadPGN(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		log.Debug().Str("path", p).Int("games", len(recs)).Msg("read PGN")
		games = append(games, recs...)
	}
	return games, nil
}

// sink streams analysed games into a BatchWriter and records their IDs once
// the batch is on disk.
type sink struct {
	outDir     string
	flushGames int
	written    *store.WrittenLog

	bw      *store.BatchWriter
	pending []string

	games, rows, batches int
}

func (s *sink) add(gameID string, rows []store.PositionRow) error {
	if s.bw == nil {
		bw, err := store.NewBatchWriter(s.outDir)
		if err != nil {
			return err
		}
		s.bw = bw
	}
	if err := s.bw.WriteGame(rows); err != nil {
		return err
	}
	s.pending = append(s.pending, gameID)
	if s.flushGames > 0 && s.bw.BufferedGames() >= s.flushGames {
		return s.flush("count")
	}
	return nil
}

func (s *sink) flush(reason string) error {
	if s.bw == nil {
		return nil
	}
	outPath, rows, games, err := s.bw.Finalize()
	s.bw = nil
	if err != nil {
		return err
	}
	if err := s.written.AddMany(s.pending); err != nil {
		log.Warn().Err(err).Msg("written log append failed")
	}
	s.pending = s.pending[:0]
	if outPath == "" {
		return nil
	}
	s.games += games
	s.rows += rows
	s.batches++
	log.Info().Str("reason", reason).Str("path", outPath).Int("games", games).Int("rows", rows).Msg("flushed batch")
	return nil
}
