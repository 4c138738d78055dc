// Command datastats summarises the parquet batches written by analyze and
// selfplay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/brensch/chessmcts/cmd/internal/cli"
	"github.com/brensch/chessmcts/logging"
	"github.com/brensch/chessmcts/store"
	"github.com/rs/zerolog/log"
)

func main() {
	roots := flag.String("roots", cli.GetEnvOrDefault("DATA_ROOTS", "data"), "Comma-separated output directories to scan")
	games := flag.Int("games", 0, "Also list up to this many games")
	logLevel := flag.String("log-level", cli.GetEnvOrDefault("CHESSMCTS_LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	if err := logging.Setup(*logLevel, logging.FormatConsole); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ds, err := store.OpenDataset(strings.Split(*roots, ","))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open dataset")
	}
	defer ds.Close()

	ctx := context.Background()
	summary, err := ds.Summary(ctx)
	if err != nil {
		ds.Close()
		log.Fatal().Err(err).Msg("summary query failed")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRESULT\tGAMES\tPOSITIONS\tAVG SIMS\tAVG WHITE VALUE")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f\t%+.3f\n", s.Source, s.Result, s.Games, s.Positions, s.AvgSimulations, s.AvgWhiteValue)
	}
	tw.Flush()

	if *games <= 0 {
		return
	}
	list, err := ds.Games(ctx, *games)
	if err != nil {
		ds.Close()
		log.Fatal().Err(err).Msg("games query failed")
	}
	fmt.Println()
	tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tSOURCE\tRESULT\tPOSITIONS\tMAX PLY\tFILE")
	for _, g := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", g.GameID, g.Source, g.Result, g.Positions, g.MaxPly, g.File)
	}
	tw.Flush()
}
