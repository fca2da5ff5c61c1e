package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// RedisConfig locates the Redis server and names the keys.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key and channel prefix, "po3" by default
	TTL      time.Duration // lifetime of the latest-context key, 0 keeps it
}

// RedisPublisher publishes every context on <prefix>:context:<symbol> and
// stores it under <prefix>:latest:<symbol>.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "po3"
	}
	p := &RedisPublisher{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "redis_publisher").Logger(),
	}
	p.logger.Info().Str("addr", cfg.Addr).Msg("redis publisher connected")
	return p, nil
}

// Channel is the pub/sub channel for symbol.
func Channel(prefix, symbol string) string { return prefix + ":context:" + symbol }

// LatestKey is the key holding the newest context of symbol.
func LatestKey(prefix, symbol string) string { return prefix + ":latest:" + symbol }

func (p *RedisPublisher) Publish(ctx context.Context, sc model.SignalContext) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, LatestKey(p.prefix, sc.Symbol), payload, p.ttl)
	pipe.Publish(ctx, Channel(p.prefix, sc.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", sc.Symbol, err)
	}
	return nil
}

// Latest reads back the stored context of symbol.
func (p *RedisPublisher) Latest(ctx context.Context, symbol string) (model.SignalContext, bool, error) {
	payload, err := p.client.Get(ctx, LatestKey(p.prefix, symbol)).Bytes()
	if err == redis.Nil {
		return model.SignalContext{}, false, nil
	}
	if err != nil {
		return model.SignalContext{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	var sc model.SignalContext
	if err := json.Unmarshal(payload, &sc); err != nil {
		return model.SignalContext{}, false, fmt.Errorf("decode context: %w", err)
	}
	return sc, true, nil
}

func (p *RedisPublisher) Close() error {
	p.logger.Info().Msg("closing redis publisher")
	return p.client.Close()
}
