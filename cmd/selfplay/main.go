// Command selfplay runs engine-vs-engine games and writes every searched
// position to parquet batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brensch/chessmcts/cmd/internal/cli"
	"github.com/brensch/chessmcts/executor/convert"
	"github.com/brensch/chessmcts/executor/inference"
	"github.com/brensch/chessmcts/executor/mcts"
	"github.com/brensch/chessmcts/executor/selfplay"
	"github.com/brensch/chessmcts/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

var totalMoves atomic.Int64
var totalInferences atomic.Int64
var totalGames atomic.Int64

// countingEvaluator counts evaluator calls for the throughput stats.
type countingEvaluator struct {
	*inference.Backend
}

func (c countingEvaluator) Evaluate(input convert.Planes) ([]float32, float32, error) {
	totalInferences.Add(1)
	return c.Backend.Evaluate(input)
}

type gameWriteRequest struct {
	rows []store.PositionRow
}

func main() {
	outDir := flag.String("out-dir", cli.GetEnvOrDefault("OUT_DIR", "data/selfplay"), "Output directory for generated parquet batches")
	workers := flag.Int("workers", cli.GetEnvIntOrDefault("WORKERS", 8), "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", cli.GetEnvIntOrDefault("GAMES_PER_FLUSH", 50), "Number of games to buffer per parquet flush")
	maxGames := flag.Int64("max-games", 0, "If > 0, stop after generating this many games (across all workers)")
	maxPlies := flag.Int("max-plies", cli.GetEnvIntOrDefault("MAX_PLIES", 300), "Stop a game unfinished after this many plies; 0 means no limit")
	samplePlies := flag.Int("sample-plies", cli.GetEnvIntOrDefault("SAMPLE_PLIES", 16), "Opening plies that sample moves by visit share")
	startFEN := flag.String("start-fen", "", "Start position; empty means the standard one")
	seed := flag.Int64("seed", 0, "Base random seed; 0 seeds from the clock")
	trace := flag.Bool("trace", false, "Log worker 0's boards at debug level")
	useTUI := flag.Bool("tui", false, "Show a live terminal dashboard instead of periodic stats logs")
	ef := cli.RegisterEngineFlags(flag.CommandLine)
	flag.Parse()

	if err := ef.SetupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	if *useTUI {
		// Keep log lines from tearing the dashboard.
		f, err := os.OpenFile("selfplay.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal().Err(err).Msg("error opening log file")
		}
		defer f.Close()
		log.Logger = log.Output(f)
	}

	backend, err := ef.OpenBackend()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build evaluator")
	}
	defer backend.Close()

	engine, err := mcts.New(countingEvaluator{backend}, ef.SearchConfig())
	if err != nil {
		backend.Close()
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	log.Info().Int("workers", *workers).Int("sims", ef.Simulations).Str("model", ef.Model).Msg("starting self-play")
	// Each worker has at most one evaluation in flight.
	if ef.Model != "" && ef.BatchSize > *workers {
		log.Warn().Int("batch_size", ef.BatchSize).Int("workers", *workers).
			Msg("onnx batch size exceeds in-flight requests; batches will not fill")
	}

	updates := make(chan GameUpdate, *workers)
	writeReqs := make(chan gameWriteRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *gamesPerFlush, writeReqs)
		close(writerDone)
	}()

	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerId int) {
			defer workerWG.Done()
			log.Debug().Int("worker", workerId).Msg("worker started")
			for game := int64(0); ctx.Err() == nil; game++ {
				opts := selfplay.PlayGameOptions{
					StartFEN:    *startFEN,
					SamplePlies: *samplePlies,
					MaxPlies:    *maxPlies,
					ModelPath:   ef.Model,
					Verbose:     *trace && workerId == 0,
					OnStep:      func() { totalMoves.Add(1) },
				}
				if *seed != 0 {
					opts.Seed = *seed + int64(workerId)*1_000_003 + game
				}

				out, err := selfplay.PlayGame(ctx, workerId, engine, opts)
				if err != nil {
					log.Error().Err(err).Int("worker", workerId).Msg("game aborted")
					continue
				}
				if !out.Completed {
					return
				}

				total := totalGames.Add(1)
				if *maxGames > 0 && total >= *maxGames {
					cancel()
				}
				writeReqs <- gameWriteRequest{rows: out.Rows}

				// Avoid blocking shutdown if the UI loop stops consuming.
				select {
				case updates <- GameUpdate{WorkerID: workerId, Result: out.Result, Examples: len(out.Rows)}:
				default:
				}
			}
		}(i)
	}

	shutdown := func() {
		log.Info().Msg("shutdown requested; waiting for workers to finish current games")
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		log.Info().Int64("games", totalGames.Load()).Msg("shutdown complete: final parquet flush done")
	}

	if *useTUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("dashboard failed")
		}
		cancel()
		shutdown()
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return
		case update := <-updates:
			log.Info().Int("worker", update.WorkerID).Str("result", update.Result.Result).
				Int("plies", update.Result.Plies).Int("examples", update.Examples).Msg("game finished")
		case <-ticker.C:
			secs := time.Since(startTime).Seconds()
			ev := log.Info().
				Float64("moves_per_sec", float64(totalMoves.Load())/secs).
				Float64("inf_per_sec", float64(totalInferences.Load())/secs).
				Int64("games", totalGames.Load())
			if st, ok := backend.Stats(); ok {
				ev = ev.Float64("batch_avg", st.AvgBatchSize).Int64("batch_last", st.LastBatchSize).
					Int("queue", st.QueueLen).Float64("run_avg_ms", st.AvgRunMs)
			}
			if hits, misses := backend.CacheStats(); hits+misses > 0 {
				ev = ev.Int64("cache_hits", hits).Int64("cache_misses", misses)
			}
			ev.Msg("stats")
		}
	}
}

func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan gameWriteRequest) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	pendingRows := make([]store.PositionRow, 0, 128*gamesPerFlush)
	pendingGames := 0

	flush := func(reason string) {
		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Error().Err(err).Str("reason", reason).Int("games", pendingGames).Int("rows", len(pendingRows)).Msg("parquet flush failed")
		} else {
			log.Info().Str("reason", reason).Str("path", outPath).Int("games", pendingGames).Int("rows", len(pendingRows)).Msg("parquet flush ok")
		}
		pendingRows = pendingRows[:0]
		pendingGames = 0
	}

	for req := range in {
		if len(req.rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, req.rows...)
		pendingGames++
		if pendingGames >= gamesPerFlush {
			flush("count")
		}
	}
	if pendingGames > 0 {
		flush("final")
	}
}
