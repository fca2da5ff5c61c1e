package liquidity

import "github.com/RonoHenry/AgentICTrader/internal/model"

// structure remembers the last confirmed swing high and low and whether a
// close has already broken each of them.
type structure struct {
	high, low             *model.SwingPoint
	highBroken, lowBroken bool
}

// check reports a break of structure by c's close. Each swing breaks once.
func (s *structure) check(c model.Candle) *model.StructureBreak {
	switch {
	case s.high != nil && !s.highBroken && c.Close > s.high.Price:
		s.highBroken = true
		return &model.StructureBreak{Direction: model.Bullish, Level: s.high.Price, SwingID: s.high.ID, Close: c.Close, At: c.OpenTime}
	case s.low != nil && !s.lowBroken && c.Close < s.low.Price:
		s.lowBroken = true
		return &model.StructureBreak{Direction: model.Bearish, Level: s.low.Price, SwingID: s.low.ID, Close: c.Close, At: c.OpenTime}
	}
	return nil
}

func (s *structure) observe(sp *model.SwingPoint) {
	if sp == nil {
		return
	}
	p := *sp
	if p.Kind == model.SwingHigh {
		s.high, s.highBroken = &p, false
	} else {
		s.low, s.lowBroken = &p, false
	}
}
