// Command replay feeds a CSV of closed candles through the engine and prints
// the resulting context. Replaying the same file always prints the same output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/collector"
	"github.com/RonoHenry/AgentICTrader/internal/config"
	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/logging"
	"github.com/RonoHenry/AgentICTrader/internal/model"
	"github.com/RonoHenry/AgentICTrader/internal/notifier"
	"github.com/RonoHenry/AgentICTrader/internal/recorder"
)

func main() {
	var (
		csvPath  = flag.String("csv", "", "candle CSV to replay (required)")
		symbol   = flag.String("symbol", "", "symbol to print, default the first in the file")
		format   = flag.String("format", "json", "output format: json or text")
		cfgPath  = flag.String("config", "", "optional config file for analysis overrides")
		dbPath   = flag.String("db", "", "optional sqlite file to persist events and the final context")
		logLevel = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()
	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	logger := logging.New(logging.Config{Level: *logLevel, Format: "console"})
	if err := run(*csvPath, *symbol, *format, *cfgPath, *dbPath, logger); err != nil {
		logger.Error().Err(err).Msg("replay failed")
		os.Exit(1)
	}
}

func run(csvPath, symbol, format, cfgPath, dbPath string, logger zerolog.Logger) error {
	engCfg := engine.DefaultConfig()
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if engCfg, err = cfg.Engine(); err != nil {
			return err
		}
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	candles, err := collector.ReadCSV(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("%s: no candles", csvPath)
	}
	// Ties go to the coarser timeframe, the same order History merges in.
	sort.SliceStable(candles, func(i, j int) bool {
		if !candles[i].OpenTime.Equal(candles[j].OpenTime) {
			return candles[i].OpenTime.Before(candles[j].OpenTime)
		}
		return candles[i].Timeframe.Rank() > candles[j].Timeframe.Rank()
	})
	if symbol == "" {
		symbol = candles[0].Symbol
	}

	var store recorder.Recorder = recorder.NewNoopRecorder()
	if dbPath != "" {
		sr, err := recorder.NewSQLiteRecorder(dbPath, logger)
		if err != nil {
			return err
		}
		store = sr
	}
	defer store.Close()
	writer := recorder.NewSyncWriter(store, logger)
	eng := engine.New(engCfg, logger, engine.WithEventSink(writer))
	var applied, rejected int
	for _, c := range candles {
		res, err := eng.Ingest(c)
		switch {
		case err != nil:
			rejected++
			logger.Warn().Err(err).Msg("candle rejected")
		case res.Applied:
			applied++
		}
	}
	if n := writer.Failed(); n > 0 {
		return fmt.Errorf("%d events could not be recorded", n)
	}
	logger.Info().Int("candles", len(candles)).Int("applied", applied).Int("rejected", rejected).
		Msg("replay complete")

	sc, err := eng.Snapshot(symbol)
	if err != nil {
		return err
	}
	if err := store.RecordContext(context.Background(), sc); err != nil {
		return err
	}
	return render(os.Stdout, sc, format)
}

func render(w io.Writer, sc model.SignalContext, format string) error {
	switch format {
	case "text":
		_, err := fmt.Fprintln(w, notifier.FormatContext(sc))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sc)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
