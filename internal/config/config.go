package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/logging"
	"github.com/RonoHenry/AgentICTrader/internal/model"
	"github.com/RonoHenry/AgentICTrader/internal/pdarray"
	"github.com/RonoHenry/AgentICTrader/internal/phase"
)

// Feed sources.
const (
	SourceREST  = "rest"
	SourceYahoo = "yahoo"
	SourceCSV   = "csv"
	SourceMock  = "mock"
)

// Database drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`
	Analysis   Analysis `yaml:"analysis"`
	Feed       struct {
		Source    string            `yaml:"source"`
		BaseURL   string            `yaml:"base_url"`
		APIKey    string            `yaml:"api_key"`
		CSVPath   string            `yaml:"csv_path"`
		Limit     int               `yaml:"limit"`
		Timeout   time.Duration     `yaml:"timeout"`
		SymbolMap map[string]string `yaml:"symbol_map"`
	} `yaml:"feed"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		PollCron    string `yaml:"poll_cron"`
		PublishCron string `yaml:"publish_cron"`
	} `yaml:"schedule"`
	Log   logging.Config `yaml:"log"`
	Proxy string         `yaml:"proxy"`
}

// Analysis overrides engine defaults. Zero values keep the default.
type Analysis struct {
	Retention         map[string]int `yaml:"retention"`
	SwingStrength     map[string]int `yaml:"swing_strength"`
	ATRPeriod         int            `yaml:"atr_period"`
	JournalCapacity   int            `yaml:"journal_capacity"`
	SnapshotRetries   int            `yaml:"snapshot_retries"`
	ClusterTolerance  float64        `yaml:"cluster_tolerance"`
	PoolRetentionBars int            `yaml:"pool_retention_bars"`
	PoolHalfLifeBars  float64        `yaml:"pool_half_life_bars"`
	MaxSweptPools     int            `yaml:"max_swept_pools"`
	FVGMinGap         float64        `yaml:"fvg_min_gap"`
	FVGMaxRetained    int            `yaml:"fvg_max_retained"`
	Phase             struct {
		ContractionWindow   int            `yaml:"contraction_window"`
		ContractionLookback int            `yaml:"contraction_lookback"`
		ContractionFactor   float64        `yaml:"contraction_factor"`
		MinExpansionBars    int            `yaml:"min_expansion_bars"`
		DurationBars        float64        `yaml:"duration_bars"`
		Weights             *phase.Weights `yaml:"weights"`
	} `yaml:"phase"`
	Zones struct {
		MinRangeATR    float64          `yaml:"min_range_atr"`
		HalfLifeBars   float64          `yaml:"half_life_bars"`
		FVGSaturation  int              `yaml:"fvg_saturation"`
		PoolSaturation int              `yaml:"pool_saturation"`
		MaxRetained    int              `yaml:"max_retained"`
		Weights        *pdarray.Weights `yaml:"weights"`
	} `yaml:"zones"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PO3_SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("PO3_TIMEFRAMES"); v != "" {
		c.Timeframes = splitList(v)
	}
	if v := os.Getenv("FEED_SOURCE"); v != "" {
		c.Feed.Source = v
	}
	if v := os.Getenv("FEED_BASE_URL"); v != "" {
		c.Feed.BaseURL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("FEED_CSV_PATH"); v != "" {
		c.Feed.CSVPath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.PostgresURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CRON_POLL"); v != "" {
		c.Schedule.PollCron = v
	}
	if v := os.Getenv("CRON_PUBLISH"); v != "" {
		c.Schedule.PublishCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) applyDefaults() {
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"D1", "H4", "H1", "M15"}
	}
	if c.Feed.Source == "" {
		c.Feed.Source = SourceYahoo
	}
	if c.Feed.Limit == 0 {
		c.Feed.Limit = 300
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 15 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/po3.db"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "po3"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Schedule.PollCron == "" {
		c.Schedule.PollCron = "0 */5 * * * *"
	}
	if c.Schedule.PublishCron == "" {
		c.Schedule.PublishCron = "30 * * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol is required")
	}
	if _, err := c.TimeframeList(); err != nil {
		return err
	}
	switch c.Feed.Source {
	case SourceREST:
		if c.Feed.BaseURL == "" {
			return fmt.Errorf("feed.base_url is required for the rest source")
		}
	case SourceCSV:
		if c.Feed.CSVPath == "" {
			return fmt.Errorf("feed.csv_path is required for the csv source")
		}
	case SourceYahoo, SourceMock:
	default:
		return fmt.Errorf("feed.source %q is not one of rest, yahoo, csv, mock", c.Feed.Source)
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("database.postgres_url is required for the postgres driver")
		}
	case DriverSQLite, DriverNone:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, none", c.Database.Driver)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Analysis.ClusterTolerance < 0 || c.Analysis.FVGMinGap < 0 {
		return fmt.Errorf("analysis tolerances must not be negative")
	}
	if _, err := c.Engine(); err != nil {
		return err
	}
	return nil
}

// TimeframeList parses the configured timeframes, coarsest first.
func (c *Config) TimeframeList() ([]model.Timeframe, error) {
	seen := make(map[model.Timeframe]bool, len(c.Timeframes))
	for _, s := range c.Timeframes {
		tf, err := model.ParseTimeframe(s)
		if err != nil {
			return nil, fmt.Errorf("timeframes: %w", err)
		}
		seen[tf] = true
	}
	out := make([]model.Timeframe, 0, len(seen))
	for _, tf := range model.Timeframes {
		if seen[tf] {
			out = append(out, tf)
		}
	}
	return out, nil
}

// Engine overlays the analysis section on engine.DefaultConfig.
func (c *Config) Engine() (engine.Config, error) {
	a := c.Analysis
	ec := engine.DefaultConfig()

	for k, n := range a.Retention {
		tf, err := model.ParseTimeframe(k)
		if err != nil {
			return ec, fmt.Errorf("analysis.retention: %w", err)
		}
		if n > 0 {
			ec.Retention[tf] = n
		}
	}
	for k, n := range a.SwingStrength {
		tf, err := model.ParseTimeframe(k)
		if err != nil {
			return ec, fmt.Errorf("analysis.swing_strength: %w", err)
		}
		if n > 0 {
			ec.SwingStrength[tf] = n
		}
	}

	setInt(&ec.ATRPeriod, a.ATRPeriod)
	setInt(&ec.JournalCapacity, a.JournalCapacity)
	setInt(&ec.SnapshotRetries, a.SnapshotRetries)
	setFloat(&ec.Liquidity.ClusterTolerance, a.ClusterTolerance)
	setInt(&ec.Liquidity.RetentionBars, a.PoolRetentionBars)
	setFloat(&ec.Liquidity.HalfLifeBars, a.PoolHalfLifeBars)
	setInt(&ec.Liquidity.MaxSwept, a.MaxSweptPools)
	setFloat(&ec.FVG.MinGap, a.FVGMinGap)
	setInt(&ec.FVG.MaxRetained, a.FVGMaxRetained)

	p := a.Phase
	setInt(&ec.Phase.ContractionWindow, p.ContractionWindow)
	setInt(&ec.Phase.ContractionLookback, p.ContractionLookback)
	setFloat(&ec.Phase.ContractionFactor, p.ContractionFactor)
	setInt(&ec.Phase.MinExpansionBars, p.MinExpansionBars)
	setFloat(&ec.Phase.DurationBars, p.DurationBars)
	if p.Weights != nil {
		ec.Phase.Weights = *p.Weights
	}

	z := a.Zones
	setFloat(&ec.Zones.MinRangeATR, z.MinRangeATR)
	setFloat(&ec.Zones.HalfLifeBars, z.HalfLifeBars)
	setInt(&ec.Zones.FVGSaturation, z.FVGSaturation)
	setInt(&ec.Zones.PoolSaturation, z.PoolSaturation)
	setInt(&ec.Zones.MaxRetained, z.MaxRetained)
	if z.Weights != nil {
		ec.Zones.Weights = *z.Weights
	}

	if ec.Phase.ContractionFactor >= 1 {
		return ec, fmt.Errorf("analysis.phase.contraction_factor must be below 1")
	}
	return ec, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
