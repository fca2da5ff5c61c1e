// Package publisher distributes SignalContexts to downstream consumers.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Publisher delivers one SignalContext to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, sc model.SignalContext) error
	Close() error
}

// Noop discards every context.
type Noop struct{}

func (Noop) Publish(context.Context, model.SignalContext) error { return nil }
func (Noop) Close() error                                       { return nil }

// Multi fans a context out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, sc model.SignalContext) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, sc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// backoffUnit is the first retry delay; it doubles on every attempt.
var backoffUnit = time.Second

// PublishWithRetry publishes with exponential backoff retry.
func PublishWithRetry(ctx context.Context, p Publisher, sc model.SignalContext, maxRetries int, logger zerolog.Logger) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := p.Publish(ctx, sc)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := backoffUnit << uint(i)
		logger.Warn().Err(err).
			Str("symbol", sc.Symbol).
			Int("attempt", i+1).
			Dur("backoff", backoff).
			Msg("publish failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", maxRetries+1, lastErr)
}
