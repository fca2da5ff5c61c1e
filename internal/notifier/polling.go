package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// telegramUpdate represents a Telegram update from long polling.
type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("telegram polling stopped")
			return
		default:
		}

		next, err := t.poll(ctx, client, offset, handler)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Msg("polling request failed")
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}
		offset = next
	}
}

// poll fetches one batch of updates, dispatches them and returns the next offset.
func (t *TelegramNotifier) poll(ctx context.Context, client *http.Client, offset int, handler CommandHandler) (int, error) {
	apiURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30", t.BaseURL, t.BotToken, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return offset, fmt.Errorf("create polling request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return offset, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return offset, fmt.Errorf("read polling response: %w", err)
	}

	var result struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return offset, fmt.Errorf("decode polling response: %w", err)
	}

	for _, update := range result.Result {
		offset = update.UpdateID + 1
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		text := strings.TrimSpace(update.Message.Text)
		t.logger.Info().Str("command", text).Msg("received command")
		if reply := handler(ctx, text); reply != "" {
			if err := t.Send(ctx, reply); err != nil {
				t.logger.Error().Err(err).Msg("send reply failed")
			}
		}
	}
	return offset, nil
}

// ContextSource is what chat commands read from.
type ContextSource interface {
	Symbols() []string
	Snapshot(symbol string) (model.SignalContext, error)
	Phases(symbol string, tf model.Timeframe, from, to time.Time) ([]model.PhaseTransition, error)
}

const usage = "Commands:\n• /symbols\n• /context SYMBOL\n• /phases SYMBOL TIMEFRAME"

// Commands answers chat commands from a ContextSource.
func Commands(src ContextSource) CommandHandler {
	return func(_ context.Context, command string) string {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return usage
		}
		switch strings.ToLower(fields[0]) {
		case "/symbols":
			symbols := src.Symbols()
			if len(symbols) == 0 {
				return "No symbols tracked yet."
			}
			return "Tracking: " + strings.Join(symbols, ", ")
		case "/context":
			if len(fields) < 2 {
				return usage
			}
			sc, err := src.Snapshot(strings.ToUpper(fields[1]))
			if err != nil {
				return fmt.Sprintf("❌ %v", err)
			}
			return FormatContext(sc)
		case "/phases":
			if len(fields) < 3 {
				return usage
			}
			tf, err := model.ParseTimeframe(fields[2])
			if err != nil {
				return fmt.Sprintf("❌ %v", err)
			}
			symbol := strings.ToUpper(fields[1])
			transitions, err := src.Phases(symbol, tf, time.Time{}, time.Time{})
			if err != nil {
				return fmt.Sprintf("❌ %v", err)
			}
			if len(transitions) > 10 {
				transitions = transitions[len(transitions)-10:]
			}
			return FormatTransitions(symbol, tf, transitions)
		default:
			return usage
		}
	}
}
