package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		in   string
		want Timeframe
		err  bool
	}{
		{"D1", Daily, false},
		{" 15m ", M15, false},
		{"weekly", Weekly, false},
		{"1mo", Monthly, false},
		{"1M", M1, false},
		{"4h", H4, false},
		{"2h", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTimeframe(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseTimeframe(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRank(t *testing.T) {
	if Monthly.Rank() != 8 || H1.Rank() != 4 || M1.Rank() != 1 {
		t.Errorf("ranks: MN=%d H1=%d M1=%d", Monthly.Rank(), H1.Rank(), M1.Rank())
	}
	if Timeframe("H2").Valid() {
		t.Error("H2 should be invalid")
	}
}

func TestTruncateAndCloseTime(t *testing.T) {
	ts := time.Date(2024, 3, 14, 13, 47, 12, 0, time.UTC) // Thursday
	tests := []struct {
		tf    Timeframe
		open  time.Time
		close time.Time
	}{
		{M15, time.Date(2024, 3, 14, 13, 45, 0, 0, time.UTC), time.Date(2024, 3, 14, 14, 0, 0, 0, time.UTC)},
		{H4, time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC), time.Date(2024, 3, 14, 16, 0, 0, 0, time.UTC)},
		{Daily, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{Weekly, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)},
		{Monthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		open := tt.tf.Truncate(ts)
		if !open.Equal(tt.open) {
			t.Errorf("%s Truncate = %v, want %v", tt.tf, open, tt.open)
		}
		if got := tt.tf.CloseTime(open); !got.Equal(tt.close) {
			t.Errorf("%s CloseTime = %v, want %v", tt.tf, got, tt.close)
		}
	}
}

func TestNewIDDeterministic(t *testing.T) {
	a := NewID("fvg", "EURUSD", "H1", FormatTime(time.Unix(0, 0)))
	b := NewID("fvg", "EURUSD", "H1", FormatTime(time.Unix(0, 0)))
	c := NewID("fvg", "EURUSD", "M15", FormatTime(time.Unix(0, 0)))
	if a != b {
		t.Errorf("same parts gave %s and %s", a, b)
	}
	if a == c {
		t.Error("different parts gave the same id")
	}
}

func TestTypedErrors(t *testing.T) {
	var err error = fmt.Errorf("ingest: %w", &OutOfOrderError{Symbol: "EURUSD", Timeframe: H1})
	if !errors.Is(err, ErrOutOfOrder) || errors.Is(err, ErrMalformedCandle) {
		t.Errorf("errors.Is mismatch for %v", err)
	}
	var ooo *OutOfOrderError
	if !errors.As(err, &ooo) || ooo.Symbol != "EURUSD" {
		t.Errorf("errors.As failed for %v", err)
	}
	if !errors.Is(&InsufficientHistoryError{What: "fvg", Have: 2, Need: 3}, ErrInsufficientHistory) {
		t.Error("insufficient history not matched")
	}
}

func TestFillStateOrder(t *testing.T) {
	if !FillOpen.Before(FillPartiallyFilled) || !FillPartiallyFilled.Before(FillFilled) || FillFilled.Before(FillOpen) {
		t.Error("fill states out of order")
	}
	if Accumulation.Next() != Manipulation || Manipulation.Next() != Expansion || Expansion.Next() != Accumulation {
		t.Error("phase cycle broken")
	}
}
