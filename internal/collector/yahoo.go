package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, timeout time.Duration, symbols map[string]string) *YahooFetcher {
	m := map[string]string{
		"SPX500": "^GSPC",
		"NAS100": "^NDX",
		"US30":   "^DJI",
		"EURUSD": "EURUSD=X",
		"GBPUSD": "GBPUSD=X",
		"XAUUSD": "GC=F",
	}
	for k, v := range symbols {
		m[k] = v
	}
	return &YahooFetcher{
		BaseURL:   yahooBaseURL,
		Client:    newHTTPClient(proxyURL, timeout),
		SymbolMap: m,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooIntervals maps each timeframe to a native chart interval. H4 has no
// native interval and is resampled from 60m.
var yahooIntervals = map[model.Timeframe]string{
	model.Monthly: "1mo",
	model.Weekly:  "1wk",
	model.Daily:   "1d",
	model.H1:      "60m",
	model.M15:     "15m",
	model.M5:      "5m",
	model.M1:      "1m",
}

// yahooRanges in ascending span. Intraday intervals are capped by the API.
var yahooRanges = []struct {
	name string
	span time.Duration
}{
	{"1d", 24 * time.Hour},
	{"5d", 5 * 24 * time.Hour},
	{"1mo", 31 * 24 * time.Hour},
	{"3mo", 92 * 24 * time.Hour},
	{"6mo", 183 * 24 * time.Hour},
	{"1y", 366 * 24 * time.Hour},
	{"2y", 731 * 24 * time.Hour},
	{"5y", 5 * 366 * 24 * time.Hour},
	{"10y", 10 * 366 * 24 * time.Hour},
}

var yahooMaxRange = map[string]string{
	"1m":  "5d",
	"5m":  "1mo",
	"15m": "1mo",
	"60m": "2y",
}

// yahooRange picks the smallest range that covers limit bars of tf. Markets
// close on weekends so the wanted span is padded by half.
func yahooRange(tf model.Timeframe, interval string, limit int) string {
	want := time.Duration(float64(tf.Duration()) * float64(limit) * 1.5)
	pick := yahooRanges[len(yahooRanges)-1].name
	for _, r := range yahooRanges {
		if r.span >= want {
			pick = r.name
			break
		}
	}
	if ceiling, ok := yahooMaxRange[interval]; ok && rangeIndex(pick) > rangeIndex(ceiling) {
		pick = ceiling
	}
	return pick
}

func rangeIndex(name string) int {
	for i, r := range yahooRanges {
		if r.name == name {
			return i
		}
	}
	return len(yahooRanges)
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v []interface{}, i int) float64 {
	if i >= len(v) || v[i] == nil {
		return 0
	}
	switch n := v[i].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (f *YahooFetcher) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if tf == model.H4 {
		hourly, err := f.FetchCandles(ctx, symbol, model.H1, limit*4)
		if err != nil {
			return nil, err
		}
		bars, err := Resample(hourly, model.H4)
		if err != nil {
			return nil, err
		}
		return normalize(bars, limit), nil
	}
	interval, ok := yahooIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %s", tf)
	}
	return f.fetchChart(ctx, symbol, tf, interval, yahooRange(tf, interval, limit), limit)
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, tf model.Timeframe, interval, rng string, limit int) ([]model.Candle, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]model.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open, i)
		h := toFloat(quote.High, i)
		l := toFloat(quote.Low, i)
		c := toFloat(quote.Close, i)
		if o == 0 || h == 0 || l == 0 || c == 0 {
			continue // null bars (holidays, halts)
		}
		// daily and coarser bars are stamped at the exchange open
		candles = append(candles, model.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  tf.Truncate(time.Unix(ts, 0)),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    toFloat(quote.Volume, i),
		})
	}
	return normalize(candles, limit), nil
}
