package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

var csvColumns = []string{"symbol", "timeframe", "open_time", "open", "high", "low", "close", "volume"}

// ReadCSV parses candles with the header
// symbol,timeframe,open_time,open,high,low,close,volume. open_time is
// RFC 3339 or Unix seconds. Rows are returned in file order.
func ReadCSV(r io.Reader) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvColumns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range csvColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return nil, fmt.Errorf("csv column %d is %q, want %q", i+1, header[i], col)
		}
	}

	var out []model.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		c, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, c)
	}
}

func parseRow(rec []string) (model.Candle, error) {
	tf, err := model.ParseTimeframe(rec[1])
	if err != nil {
		return model.Candle{}, err
	}
	ts, err := parseTime(rec[2])
	if err != nil {
		return model.Candle{}, err
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[3+i]), 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("%s: %w", csvColumns[3+i], err)
		}
		vals[i] = v
	}
	return model.Candle{
		Symbol:    strings.TrimSpace(rec[0]),
		Timeframe: tf,
		OpenTime:  ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("open_time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// CSVFetcher serves candles from a CSV file, loaded on first use. A
// timeframe missing from the file is resampled from the coarsest finer one
// that is present.
type CSVFetcher struct {
	Path string

	once    sync.Once
	err     error
	candles map[string][]model.Candle
}

func NewCSVFetcher(path string) *CSVFetcher { return &CSVFetcher{Path: path} }

func (f *CSVFetcher) Name() string { return "csv" }

func (f *CSVFetcher) load() error {
	f.once.Do(func() {
		file, err := os.Open(f.Path)
		if err != nil {
			f.err = fmt.Errorf("open csv: %w", err)
			return
		}
		defer file.Close()
		rows, err := ReadCSV(file)
		if err != nil {
			f.err = err
			return
		}
		f.candles = make(map[string][]model.Candle)
		for _, c := range rows {
			k := c.Symbol + "|" + string(c.Timeframe)
			f.candles[k] = append(f.candles[k], c)
		}
		for k, cs := range f.candles {
			f.candles[k] = normalize(cs, 0)
		}
	})
	return f.err
}

func (f *CSVFetcher) FetchCandles(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	if cs, ok := f.candles[symbol+"|"+string(tf)]; ok {
		return normalize(append([]model.Candle(nil), cs...), limit), nil
	}
	for _, src := range model.Timeframes {
		if src.Rank() >= tf.Rank() {
			continue
		}
		if cs, ok := f.candles[symbol+"|"+string(src)]; ok {
			bars, err := Resample(cs, tf)
			if err != nil {
				return nil, err
			}
			return normalize(bars, limit), nil
		}
	}
	return nil, fmt.Errorf("csv: no %s candles for %s", tf, symbol)
}
