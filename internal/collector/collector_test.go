package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RonoHenry/AgentICTrader/internal/engine"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // Monday

func hourly(n int, start time.Time) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{
			Symbol: "EURUSD", Timeframe: model.H1, OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open: p, High: p + 2, Low: p - 1, Close: p + 1, Volume: 10,
		}
	}
	return out
}

func TestResample(t *testing.T) {
	bars, err := Resample(hourly(10, t0), model.H4)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	first := bars[0]
	if first.Timeframe != model.H4 || !first.OpenTime.Equal(t0) {
		t.Errorf("first bar header = %s %v", first.Timeframe, first.OpenTime)
	}
	if first.Open != 100 || first.High != 105 || first.Low != 99 || first.Close != 104 || first.Volume != 40 {
		t.Errorf("first bar = %+v", first)
	}
	if last := bars[2]; last.Open != 108 || last.Close != 110 || last.Volume != 20 {
		t.Errorf("partial bar = %+v", last)
	}
}

func TestResampleWeeklyAndMonthly(t *testing.T) {
	var daily []model.Candle
	for i := 0; i < 35; i++ {
		p := 100 + float64(i)
		daily = append(daily, model.Candle{
			Symbol: "EURUSD", Timeframe: model.Daily, OpenTime: t0.AddDate(0, 0, i),
			Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1,
		})
	}
	weekly, err := Resample(daily, model.Weekly)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly) != 5 || weekly[1].Volume != 7 || !weekly[1].OpenTime.Equal(t0.AddDate(0, 0, 7)) {
		t.Errorf("weekly = %+v", weekly)
	}
	monthly, err := Resample(daily, model.Monthly)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	// 4 Mar .. 7 Apr spans March and April
	if len(monthly) != 2 || monthly[0].Volume != 28 || monthly[1].Volume != 7 {
		t.Errorf("monthly = %+v", monthly)
	}
}

func TestResampleErrors(t *testing.T) {
	if _, err := Resample(hourly(3, t0), model.M15); err == nil {
		t.Error("expected error for finer target")
	}
	mixed := hourly(3, t0)
	mixed[1].Symbol = "GBPUSD"
	if _, err := Resample(mixed, model.H4); err == nil {
		t.Error("expected error for mixed symbols")
	}
	unordered := hourly(6, t0)
	unordered[5].OpenTime = t0.Add(-time.Hour)
	if _, err := Resample(unordered, model.H4); err == nil {
		t.Error("expected error for out of order input")
	}
}

func TestRESTFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("timeframe") == "H4" {
			http.Error(w, "unsupported", http.StatusBadRequest)
			return
		}
		var bars []restBar
		for _, c := range hourly(8, t0) {
			bars = append(bars, restBar{Timestamp: c.OpenTime.Unix(), Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
		}
		// newest first to check ordering
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
		json.NewEncoder(w).Encode(bars)
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, "secret", "", time.Second)
	got, err := f.FetchCandles(context.Background(), "EURUSD", model.H1, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 5 || !got[0].OpenTime.Equal(t0.Add(3*time.Hour)) || got[4].Close != 108 {
		t.Errorf("H1 candles = %+v", got)
	}

	h4, err := f.FetchCandles(context.Background(), "EURUSD", model.H4, 10)
	if err != nil {
		t.Fatalf("fetch H4 fallback: %v", err)
	}
	if len(h4) != 2 || h4[0].Timeframe != model.H4 || h4[1].High != 109 {
		t.Errorf("H4 candles = %+v", h4)
	}

	bad := NewRESTFetcher(srv.URL, "wrong", "", time.Second)
	if _, err := bad.FetchCandles(context.Background(), "EURUSD", model.M1, 5); err == nil {
		t.Error("expected error on unauthorized")
	}
}

const yahooBody = `{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{
"open":[1.1,1.2,null,1.3],"high":[1.15,1.25,null,1.35],"low":[1.05,1.15,null,1.25],
"close":[1.12,1.22,null,1.32],"volume":[10,20,null,30]}]}}],"error":null}}`

func TestYahooFetcher(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		ts := []string{}
		for i := 0; i < 4; i++ {
			// stamped at 08:00 exchange open
			ts = append(ts, jsonInt(t0.AddDate(0, 0, i).Add(8*time.Hour).Unix()))
		}
		w.Write([]byte(strings.Replace(yahooBody, "%s", strings.Join(ts, ","), 1)))
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second, map[string]string{"FOO": "FOO.L"})
	f.BaseURL = srv.URL
	got, err := f.FetchCandles(context.Background(), "EURUSD", model.Daily, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/v8/finance/chart/EURUSD=X" || gotInterval != "1d" {
		t.Errorf("request path=%s interval=%s", gotPath, gotInterval)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candles, want 3 (null bar skipped)", len(got))
	}
	if !got[0].OpenTime.Equal(t0) || got[2].Close != 1.32 || got[2].Volume != 30 {
		t.Errorf("candles = %+v", got)
	}
	if f.yahooSymbol("FOO") != "FOO.L" || f.yahooSymbol("BAR") != "BAR" {
		t.Error("symbol map not applied")
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestYahooRange(t *testing.T) {
	tests := []struct {
		tf    model.Timeframe
		limit int
		want  string
	}{
		{model.Daily, 20, "1mo"},
		{model.Daily, 300, "2y"},
		{model.Weekly, 100, "5y"},
		{model.M1, 5000, "5d"},
		{model.M15, 3000, "1mo"},
		{model.H1, 300, "1mo"},
	}
	for _, tt := range tests {
		interval := yahooIntervals[tt.tf]
		if got := yahooRange(tt.tf, interval, tt.limit); got != tt.want {
			t.Errorf("yahooRange(%s, %d) = %s, want %s", tt.tf, tt.limit, got, tt.want)
		}
	}
}

const csvData = `symbol,timeframe,open_time,open,high,low,close,volume
EURUSD,H1,2024-03-04T00:00:00Z,100,102,99,101,10
EURUSD,H1,2024-03-04T01:00:00Z,101,103,100,102,10
EURUSD,H1,1709517600,102,104,101,103,10
EURUSD,H1,2024-03-04T03:00:00Z,103,105,102,104,10
EURUSD,D1,2024-03-04T00:00:00Z,100,110,95,105,100
`

func TestReadCSV(t *testing.T) {
	got, err := ReadCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d rows", len(got))
	}
	if !got[2].OpenTime.Equal(t0.Add(2*time.Hour)) || got[4].Timeframe != model.Daily {
		t.Errorf("rows = %+v", got)
	}

	for name, body := range map[string]string{
		"bad header":    "sym,tf,t,o,h,l,c,v\n",
		"bad number":    "symbol,timeframe,open_time,open,high,low,close,volume\nX,H1,0,a,1,1,1,1\n",
		"bad timeframe": "symbol,timeframe,open_time,open,high,low,close,volume\nX,H2,0,1,1,1,1,1\n",
		"short row":     "symbol,timeframe,open_time,open,high,low,close,volume\nX,H1,0,1\n",
	} {
		if _, err := ReadCSV(strings.NewReader(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCSVFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := os.WriteFile(path, []byte(csvData), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewCSVFetcher(path)
	ctx := context.Background()

	h1, err := f.FetchCandles(ctx, "EURUSD", model.H1, 2)
	if err != nil || len(h1) != 2 || h1[1].Close != 104 {
		t.Fatalf("H1 = %+v, %v", h1, err)
	}
	h4, err := f.FetchCandles(ctx, "EURUSD", model.H4, 0)
	if err != nil || len(h4) != 1 || h4[0].High != 105 || h4[0].Volume != 40 {
		t.Fatalf("H4 resampled = %+v, %v", h4, err)
	}
	if _, err := f.FetchCandles(ctx, "GBPUSD", model.H1, 0); err == nil {
		t.Error("expected error for unknown symbol")
	}
	if _, err := NewCSVFetcher(filepath.Join(t.TempDir(), "none.csv")).FetchCandles(ctx, "EURUSD", model.H1, 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMockFetcherStable(t *testing.T) {
	now := t0.Add(10*time.Hour + 7*time.Minute)
	m := &MockFetcher{Price: 1.08, Now: func() time.Time { return now }}
	a, _ := m.FetchCandles(context.Background(), "EURUSD", model.M15, 50)
	now = now.Add(30 * time.Minute)
	b, _ := m.FetchCandles(context.Background(), "EURUSD", model.M15, 50)

	if len(a) != 50 || len(b) != 50 {
		t.Fatalf("lengths %d %d", len(a), len(b))
	}
	if !a[49].OpenTime.Equal(t0.Add(10 * time.Hour)) {
		t.Errorf("last open = %v", a[49].OpenTime)
	}
	// b is shifted by two bars; overlapping bars must match exactly
	for i := 2; i < 50; i++ {
		if !sameCandle(a[i], b[i-2]) {
			t.Fatalf("bar %v differs between polls", a[i].OpenTime)
		}
	}
	for _, c := range a {
		if c.Low > c.Open || c.Low > c.Close || c.High < c.Open || c.High < c.Close {
			t.Fatalf("malformed mock candle %+v", c)
		}
	}
}

func sameCandle(a, b model.Candle) bool {
	return a.OpenTime.Equal(b.OpenTime) && a.Open == b.Open && a.High == b.High &&
		a.Low == b.Low && a.Close == b.Close && a.Volume == b.Volume
}

type fakeIngester struct {
	got  []model.Candle
	seen map[string]bool
}

func (f *fakeIngester) Ingest(c model.Candle) (engine.Result, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if c.Close < 0 {
		return engine.Result{}, &model.MalformedCandleError{Symbol: c.Symbol, Reason: "negative"}
	}
	key := string(c.Timeframe) + model.FormatTime(c.OpenTime)
	if f.seen[key] {
		return engine.Result{}, nil
	}
	f.seen[key] = true
	f.got = append(f.got, c)
	return engine.Result{Applied: true}, nil
}

func TestCollectorPoll(t *testing.T) {
	daily := []model.Candle{
		{Symbol: "EURUSD", Timeframe: model.Daily, OpenTime: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Symbol: "EURUSD", Timeframe: model.Daily, OpenTime: t0.AddDate(0, 0, 1), Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}
	m := &MockFetcher{Data: map[model.Timeframe][]model.Candle{
		model.H1:    hourly(6, t0.AddDate(0, 0, 1)),
		model.Daily: daily,
	}}
	sink := &fakeIngester{}
	now := t0.AddDate(0, 0, 1).Add(4*time.Hour + 30*time.Minute)
	c := NewCollector(m, sink, []string{"EURUSD"}, []model.Timeframe{model.H1, model.Daily}, zerolog.Nop(),
		WithClock(func() time.Time { return now }), WithLimit(100))

	st, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	// daily: 1 closed, 1 forming; hourly: 4 closed, 2 forming
	if st.Fetched != 8 || st.Applied != 5 || st.Skipped != 3 {
		t.Errorf("first poll stats = %+v", st)
	}
	if sink.got[0].Timeframe != model.Daily {
		t.Error("coarser timeframe should be ingested first")
	}

	now = now.Add(2 * time.Hour)
	st, _ = c.Poll(context.Background())
	if st.Applied != 2 || st.Skipped != 6 {
		t.Errorf("second poll stats = %+v", st)
	}
	last, ok := c.last["EURUSD|"+string(model.H1)]
	if !ok || !last.Equal(t0.AddDate(0, 0, 1).Add(5*time.Hour)) {
		t.Errorf("last seen = %v %v", last, ok)
	}
}

type failingFetcher struct{}

func (failingFetcher) Name() string { return "failing" }
func (failingFetcher) FetchCandles(context.Context, string, model.Timeframe, int) ([]model.Candle, error) {
	return nil, errors.New("boom")
}

func TestCollectorJoinsErrors(t *testing.T) {
	c := NewCollector(failingFetcher{}, &fakeIngester{}, []string{"A", "B"}, []model.Timeframe{model.H1}, zerolog.Nop())
	_, err := c.Poll(context.Background())
	if err == nil || strings.Count(err.Error(), "boom") != 2 {
		t.Errorf("err = %v", err)
	}
}
