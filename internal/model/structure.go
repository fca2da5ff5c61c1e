package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idNamespace scopes every entity ID so replays of the same candles yield
// the same identifiers.
var idNamespace = uuid.MustParse("6f1c2a8e-4b1d-5c3e-9a7f-2d8e0b4c6a10")

// NewID derives a stable name-based (SHA-1) UUID from the entity kind and its
// identifying parts.
func NewID(kind string, parts ...string) string {
	name := kind + "|" + strings.Join(parts, "|")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// FormatPrice renders a price for ID derivation without locale or rounding drift.
func FormatPrice(p float64) string { return strconv.FormatFloat(p, 'g', -1, 64) }

// FormatTime renders a time for ID derivation.
func FormatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a confirmed local extremum. Later points supersede it, it is
// never edited.
type SwingPoint struct {
	ID        string    `json:"id"`
	Timeframe Timeframe `json:"timeframe"`
	Kind      SwingKind `json:"kind"`
	Price     float64   `json:"price"`
	Time      time.Time `json:"time"`
}

// FillState of a fair value gap. It only moves forward.
type FillState string

const (
	FillOpen            FillState = "open"
	FillPartiallyFilled FillState = "partially_filled"
	FillFilled          FillState = "filled"
)

func (s FillState) order() int {
	switch s {
	case FillOpen:
		return 0
	case FillPartiallyFilled:
		return 1
	case FillFilled:
		return 2
	default:
		return -1
	}
}

// Before reports whether s precedes next in the fill lifecycle.
func (s FillState) Before(next FillState) bool { return s.order() < next.order() }

// FairValueGap is a three-candle imbalance. Bounds are fixed at creation.
type FairValueGap struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Timeframe Timeframe  `json:"timeframe"`
	Direction Direction  `json:"direction"`
	PriceLow  float64    `json:"price_low"`
	PriceHigh float64    `json:"price_high"`
	FormedAt  time.Time  `json:"formed_at"`
	FillState FillState  `json:"fill_state"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
}

// Midpoint of the gap (consequent encroachment).
func (g FairValueGap) Midpoint() float64 { return (g.PriceLow + g.PriceHigh) / 2 }

// PoolKind says which side of the market rests at a liquidity level.
type PoolKind string

const (
	BuySide  PoolKind = "buy_side"  // resting above swing highs
	SellSide PoolKind = "sell_side" // resting below swing lows
)

// Session is the trading session a pool formed in.
type Session string

const (
	SessionNone    Session = "none"
	SessionAsian   Session = "asian"
	SessionLondon  Session = "london"
	SessionNewYork Session = "new_york"
	SessionOff     Session = "off_hours"
)

// LiquidityPool is a clustered swing level. Price is fixed at the first
// contributing swing; Swept is terminal.
type LiquidityPool struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Timeframe   Timeframe  `json:"timeframe"`
	Kind        PoolKind   `json:"kind"`
	Price       float64    `json:"price"`
	Session     Session    `json:"session"`
	FormedAt    time.Time  `json:"formed_at"`
	Touches     int        `json:"touches"`
	LastTouchAt time.Time  `json:"last_touch_at"`
	Swept       bool       `json:"swept"`
	SweptAt     *time.Time `json:"swept_at,omitempty"`
	Relevance   float64    `json:"relevance"`
	SwingRefs   []string   `json:"swing_refs,omitempty"`
}

// SweepDirection is the direction price travelled to take the pool.
func (p LiquidityPool) SweepDirection() Direction {
	if p.Kind == BuySide {
		return Bullish
	}
	return Bearish
}

// ZoneKind classifies a PD array.
type ZoneKind string

const (
	Premium  ZoneKind = "premium"
	Discount ZoneKind = "discount"
)

// Opposite flips premium and discount.
func (k ZoneKind) Opposite() ZoneKind {
	if k == Premium {
		return Discount
	}
	return Premium
}

// AlignedZoneKind is the zone kind that agrees with a directional bias:
// longs are taken from discount, shorts from premium.
func AlignedZoneKind(d Direction) ZoneKind {
	if d == Bearish {
		return Premium
	}
	return Discount
}

// Zone invalidation reasons.
const (
	ReasonClosedThrough = "closed_through"
	ReasonSuperseded    = "superseded"
	ReasonBiasOverride  = "bias_override"
	ReasonHTFOverride   = "htf_override"
)

// Zone is a premium or discount PD array. Bounds never change; strength and
// validity do.
type Zone struct {
	ID                 string        `json:"id"`
	Symbol             string        `json:"symbol"`
	Timeframe          Timeframe     `json:"timeframe"`
	Kind               ZoneKind      `json:"kind"`
	PriceLow           float64       `json:"price_low"`
	PriceHigh          float64       `json:"price_high"`
	Strength           float64       `json:"strength"`
	Factors            []FactorScore `json:"factors,omitempty"`
	Refs               []string      `json:"refs,omitempty"`
	Touches            int           `json:"touches"`
	Reactions          int           `json:"reactions"`
	CreatedAt          time.Time     `json:"created_at"`
	InvalidatedAt      *time.Time    `json:"invalidated_at,omitempty"`
	InvalidationReason string        `json:"invalidation_reason,omitempty"`
}

// Active reports whether the zone has not been invalidated.
func (z Zone) Active() bool { return z.InvalidatedAt == nil }

// Contains reports whether price lies inside the zone bounds.
func (z Zone) Contains(price float64) bool {
	return price >= z.PriceLow && price <= z.PriceHigh
}

// Overlaps reports whether [low, high] shares any price with the zone.
func (z Zone) Overlaps(low, high float64) bool {
	return z.PriceLow < high && low < z.PriceHigh
}

// PhaseKind is one state of the PO3 cycle.
type PhaseKind string

const (
	Accumulation PhaseKind = "accumulation"
	Manipulation PhaseKind = "manipulation"
	Expansion    PhaseKind = "expansion"
)

// Next is the only legal successor in the cycle.
func (k PhaseKind) Next() PhaseKind {
	switch k {
	case Accumulation:
		return Manipulation
	case Manipulation:
		return Expansion
	default:
		return Accumulation
	}
}

// PhaseState is the single active phase of a (symbol, timeframe).
type PhaseState struct {
	Kind      PhaseKind     `json:"kind"`
	Direction Direction     `json:"direction,omitempty"`
	EnteredAt time.Time     `json:"entered_at"`
	Bars      int           `json:"bars"`
	Strength  float64       `json:"strength"`
	Factors   []FactorScore `json:"factors,omitempty"`
	Evidence  []string      `json:"evidence,omitempty"`
}

// PhaseTransition is one entry of the append-only phase history.
type PhaseTransition struct {
	From      PhaseKind `json:"from"`
	To        PhaseKind `json:"to"`
	At        time.Time `json:"at"`
	Direction Direction `json:"direction,omitempty"`
	Strength  float64   `json:"strength"`
	Evidence  []string  `json:"evidence,omitempty"`
	Note      string    `json:"note,omitempty"`
}

func (t PhaseTransition) String() string {
	return fmt.Sprintf("%s -> %s at %s", t.From, t.To, FormatTime(t.At))
}
