package model

import "time"

// EventKind names a lifecycle event in the journal.
type EventKind string

const (
	EventSwingConfirmed     EventKind = "swing_confirmed"
	EventFVGCreated         EventKind = "fvg_created"
	EventFVGPartiallyFilled EventKind = "fvg_partially_filled"
	EventFVGFilled          EventKind = "fvg_filled"
	EventPoolCreated        EventKind = "pool_created"
	EventPoolTouched        EventKind = "pool_touched"
	EventPoolSwept          EventKind = "pool_swept"
	EventPoolPurged         EventKind = "pool_purged"
	EventZoneCreated        EventKind = "zone_created"
	EventZoneInvalidated    EventKind = "zone_invalidated"
	EventPhaseTransition    EventKind = "phase_transition"
	EventStructureBreak     EventKind = "structure_break"
)

// Event is one append-only journal entry. At is always a candle time, never
// wall clock, so journals replay identically. Exactly one payload is set.
type Event struct {
	Seq        uint64           `json:"seq"`
	Symbol     string           `json:"symbol"`
	Timeframe  Timeframe        `json:"timeframe"`
	Kind       EventKind        `json:"kind"`
	At         time.Time        `json:"at"`
	RefID      string           `json:"ref_id,omitempty"`
	Swing      *SwingPoint      `json:"swing,omitempty"`
	FVG        *FairValueGap    `json:"fvg,omitempty"`
	Pool       *LiquidityPool   `json:"pool,omitempty"`
	Zone       *Zone            `json:"zone,omitempty"`
	Transition *PhaseTransition `json:"transition,omitempty"`
	Break      *StructureBreak  `json:"break,omitempty"`
}

// StructureBreak is a close beyond the last unbroken swing.
type StructureBreak struct {
	Direction Direction `json:"direction"`
	Level     float64   `json:"level"`
	SwingID   string    `json:"swing_id"`
	Close     float64   `json:"close"`
	At        time.Time `json:"at"`
}
