package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// RESTFetcher reads candles from a broker REST API that serves
// GET /api/v1/candles?symbol=&timeframe=&limit= as a JSON array.
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *RESTFetcher {
	return &RESTFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape of one candle. Timestamp is the open
// time in Unix seconds.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchCandles asks for tf directly. If the API rejects it, the next finer
// timeframe is fetched and resampled.
func (f *RESTFetcher) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	candles, err := f.fetch(ctx, symbol, tf, limit)
	if err == nil {
		return candles, nil
	}
	src, ratio := sourceOf(tf)
	if src == "" {
		return nil, err
	}
	fine, fineErr := f.fetch(ctx, symbol, src, limit*ratio)
	if fineErr != nil {
		return nil, fmt.Errorf("%s fetch failed: %w; %s fallback also failed: %w", tf, err, src, fineErr)
	}
	bars, rerr := Resample(fine, tf)
	if rerr != nil {
		return nil, rerr
	}
	return normalize(bars, limit), nil
}

func (f *RESTFetcher) fetch(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := f.BaseURL + "/api/v1/candles?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch candles: status %d, body: %s", resp.StatusCode, string(body))
	}
	var bars []restBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	candles := make([]model.Candle, len(bars))
	for i, b := range bars {
		candles[i] = model.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  time.Unix(b.Timestamp, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return normalize(candles, limit), nil
}
