package collector

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Fetcher retrieves candles from a market data source. Candles are returned
// oldest first; the newest may still be forming.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error)
	Name() string
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// normalize sorts candles chronologically, drops repeated open times and
// trims to the newest limit.
func normalize(candles []model.Candle, limit int) []model.Candle {
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	out := candles[:0]
	for i, c := range candles {
		if i > 0 && c.OpenTime.Equal(out[len(out)-1].OpenTime) {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// sourceOf is the finer timeframe a coarse one can be built from when a
// source has no native interval for it.
func sourceOf(tf model.Timeframe) (model.Timeframe, int) {
	switch tf {
	case model.Monthly:
		return model.Daily, 31
	case model.Weekly:
		return model.Daily, 7
	case model.Daily:
		return model.H1, 24
	case model.H4:
		return model.H1, 4
	case model.H1:
		return model.M15, 4
	case model.M15:
		return model.M5, 3
	case model.M5:
		return model.M1, 5
	default:
		return "", 0
	}
}
