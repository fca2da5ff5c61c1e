package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe identifies a candle resolution.
type Timeframe string

const (
	Monthly Timeframe = "MN"
	Weekly  Timeframe = "W1"
	Daily   Timeframe = "D1"
	H4      Timeframe = "H4"
	H1      Timeframe = "H1"
	M15     Timeframe = "M15"
	M5      Timeframe = "M5"
	M1      Timeframe = "M1"
)

// Timeframes lists every supported timeframe from coarsest to finest.
var Timeframes = []Timeframe{Monthly, Weekly, Daily, H4, H1, M15, M5, M1}

var timeframeAliases = map[string]Timeframe{
	"MN": Monthly, "MONTHLY": Monthly, "1MO": Monthly,
	"W1": Weekly, "WEEKLY": Weekly, "1W": Weekly, "1WK": Weekly,
	"D1": Daily, "DAILY": Daily, "1D": Daily, "D": Daily,
	"H4": H4, "4H": H4, "240": H4,
	"H1": H1, "1H": H1, "60M": H1, "60": H1,
	"M15": M15, "15M": M15, "15": M15,
	"M5": M5, "5M": M5, "5": M5,
	"M1": M1, "1M": M1, "1": M1,
}

// ParseTimeframe accepts canonical names (D1, M15) and common aliases (1d, 15m, Weekly).
// Note "1M" means one minute, monthly is "MN", "1mo" or "Monthly".
func ParseTimeframe(s string) (Timeframe, error) {
	if tf, ok := timeframeAliases[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Rank orders timeframes for top-down precedence: MN=8 ... M1=1, 0 if unknown.
func (tf Timeframe) Rank() int {
	for i, t := range Timeframes {
		if t == tf {
			return len(Timeframes) - i
		}
	}
	return 0
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool { return tf.Rank() > 0 }

// Duration is the nominal bar length. Weekly and monthly bars are calendar
// aligned, the value here is only used for age arithmetic.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	case Monthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Truncate returns the open time of the tf bar containing t (UTC).
func (tf Timeframe) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday-based
		return day.AddDate(0, 0, -offset)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(tf.Duration())
	}
}

// CloseTime is the open time of the bar following the one opened at open.
func (tf Timeframe) CloseTime(open time.Time) time.Time {
	switch tf {
	case Monthly:
		return open.AddDate(0, 1, 0)
	case Weekly:
		return open.AddDate(0, 0, 7)
	default:
		return open.Add(tf.Duration())
	}
}

// Bars converts an elapsed duration into a whole number of tf bars.
func (tf Timeframe) Bars(d time.Duration) float64 {
	if tf.Duration() == 0 {
		return 0
	}
	return float64(d) / float64(tf.Duration())
}

// Candle is a single closed OHLCV bar. Candles are immutable once stored.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Range is High minus Low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Intersects reports whether the candle traded anywhere inside [low, high].
func (c Candle) Intersects(low, high float64) bool {
	return c.Low <= high && c.High >= low
}

// Direction of a move, gap or bias.
type Direction string

const (
	DirectionNone Direction = ""
	Bullish       Direction = "bullish"
	Bearish       Direction = "bearish"
)

// Opposite flips bullish and bearish.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return DirectionNone
	}
}
