package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedCandle     = errors.New("malformed candle")
	ErrOutOfOrder          = errors.New("candle out of order")
	ErrInsufficientHistory = errors.New("insufficient history")
)

// MalformedCandleError rejects a candle with impossible OHLC values.
type MalformedCandleError struct {
	Symbol    string
	Timeframe Timeframe
	OpenTime  time.Time
	Reason    string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle %s %s @ %s: %s", e.Symbol, e.Timeframe, FormatTime(e.OpenTime), e.Reason)
}

func (e *MalformedCandleError) Is(target error) bool { return target == ErrMalformedCandle }

// OutOfOrderError rejects a candle whose open time does not advance the series.
type OutOfOrderError struct {
	Symbol    string
	Timeframe Timeframe
	OpenTime  time.Time
	Last      time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("candle %s %s @ %s not after last stored %s", e.Symbol, e.Timeframe, FormatTime(e.OpenTime), FormatTime(e.Last))
}

func (e *OutOfOrderError) Is(target error) bool { return target == ErrOutOfOrder }

// InsufficientHistoryError means a pattern is not yet computable. It is a
// normal result, not a failure.
type InsufficientHistoryError struct {
	What string
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: have %d candles, need %d", e.What, e.Have, e.Need)
}

func (e *InsufficientHistoryError) Is(target error) bool { return target == ErrInsufficientHistory }
