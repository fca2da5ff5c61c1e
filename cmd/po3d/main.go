package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/api"
	"github.com/RonoHenry/AgentICTrader/internal/collector"
	"github.com/RonoHenry/AgentICTrader/internal/config"
	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/logging"
	"github.com/RonoHenry/AgentICTrader/internal/notifier"
	"github.com/RonoHenry/AgentICTrader/internal/publisher"
	"github.com/RonoHenry/AgentICTrader/internal/recorder"
	"github.com/RonoHenry/AgentICTrader/internal/scheduler"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}
	logger.Info().Strs("symbols", cfg.Symbols).Strs("timeframes", cfg.Timeframes).Msg("po3d starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := openRecorder(ctx, cfg, logger)
	defer rec.Close()
	writer := recorder.NewAsyncWriter(rec, 256, logger)

	engCfg, err := cfg.Engine()
	if err != nil {
		logger.Fatal().Err(err).Msg("engine config")
	}
	eng := engine.New(engCfg, logger, engine.WithEventSink(writer))

	fetcher := newFetcher(cfg)
	logger.Info().Str("source", fetcher.Name()).Msg("data source")
	timeframes, err := cfg.TimeframeList()
	if err != nil {
		logger.Fatal().Err(err).Msg("timeframes")
	}
	col := collector.NewCollector(fetcher, eng, cfg.Symbols, timeframes, logger, collector.WithLimit(cfg.Feed.Limit))

	var pubs publisher.Multi
	if cfg.Redis.Addr != "" {
		rp, err := publisher.NewRedisPublisher(ctx, publisher.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, publishing disabled")
		} else {
			pubs = append(pubs, rp)
		}
	}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		pubs = append(pubs, tn)
	}
	var pub publisher.Publisher = publisher.Noop{}
	if len(pubs) > 0 {
		pub = pubs
	}
	defer pub.Close()

	sched := scheduler.NewScheduler(ctx, col, eng, pub, rec, logger)
	if err := sched.RegisterAll(cfg.Schedule.PollCron, cfg.Schedule.PublishCron); err != nil {
		logger.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	go sched.RunPollNow()

	if tn != nil {
		go tn.StartPolling(ctx, notifier.Commands(eng))
		logger.Info().Msg("telegram polling started")
	}

	srv := api.NewServer(eng, rec, logger)
	go func() {
		if err := srv.Start(cfg.Server.Addr); err != nil {
			logger.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	sched.Stop()
	cancel()
	if err := writer.Close(); err != nil {
		logger.Error().Err(err).Msg("flush event writer")
	}
	logger.Info().
		Uint64("dropped_events", writer.Dropped()).
		Uint64("failed_events", writer.Failed()).
		Uint64("writer_stalls", writer.Stalls()).
		Msg("po3d stopped")
}

// openRecorder falls back to the no-op recorder when the configured store
// cannot be opened; the engine itself never depends on persistence.
func openRecorder(ctx context.Context, cfg *config.Config, logger zerolog.Logger) recorder.Recorder {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Warn().Err(err).Str("dir", dir).Msg("create data dir")
			}
		}
		r, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			return recorder.NewNoopRecorder()
		}
		return r
	case config.DriverPostgres:
		pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		r, err := recorder.NewPostgresRecorder(pctx, cfg.Database.PostgresURL, recorder.DefaultPoolConfig(), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init postgres recorder failed, using noop")
			return recorder.NewNoopRecorder()
		}
		return r
	default:
		return recorder.NewNoopRecorder()
	}
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.Feed.Source {
	case config.SourceREST:
		return collector.NewRESTFetcher(cfg.Feed.BaseURL, cfg.Feed.APIKey, cfg.Proxy, cfg.Feed.Timeout)
	case config.SourceCSV:
		return collector.NewCSVFetcher(cfg.Feed.CSVPath)
	case config.SourceMock:
		return &collector.MockFetcher{}
	default:
		return collector.NewYahooFetcher(cfg.Proxy, cfg.Feed.Timeout, cfg.Feed.SymbolMap)
	}
}
