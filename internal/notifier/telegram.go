// Package notifier sends SignalContext summaries to a Telegram chat and
// answers chat commands.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client

	logger zerolog.Logger

	mu        sync.Mutex
	headlines map[string]string
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, logger zerolog.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  telegramAPI,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger:    logger.With().Str("component", "telegram").Logger(),
		headlines: make(map[string]string),
	}
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Publish sends the context only when its headline (bias and per-timeframe
// phases) differs from the last one sent for the symbol, so a chat is not
// flooded with identical snapshots.
func (t *TelegramNotifier) Publish(ctx context.Context, sc model.SignalContext) error {
	headline := Headline(sc)
	t.mu.Lock()
	same := t.headlines[sc.Symbol] == headline
	t.mu.Unlock()
	if same {
		return nil
	}
	if err := t.Send(ctx, FormatContext(sc)); err != nil {
		return err
	}
	t.mu.Lock()
	t.headlines[sc.Symbol] = headline
	t.mu.Unlock()
	t.logger.Info().Str("symbol", sc.Symbol).Str("headline", headline).Msg("context sent")
	return nil
}

func (t *TelegramNotifier) Close() error { return nil }
