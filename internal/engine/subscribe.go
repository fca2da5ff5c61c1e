package engine

import "github.com/RonoHenry/AgentICTrader/internal/model"

// Subscribe delivers the SignalContext of symbol after every applied candle.
// Contexts are dropped when the buffer is full. The returned function
// unsubscribes and closes the channel.
func (e *Engine) Subscribe(symbol string, buffer int) (<-chan model.SignalContext, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.SignalContext, buffer)

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	if e.subs[symbol] == nil {
		e.subs[symbol] = make(map[int]chan model.SignalContext)
	}
	e.subs[symbol][id] = ch
	e.subsMu.Unlock()

	return ch, func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		if c, ok := e.subs[symbol][id]; ok {
			delete(e.subs[symbol], id)
			close(c)
		}
	}
}

func (e *Engine) publish(ctx model.SignalContext) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs[ctx.Symbol] {
		select {
		case ch <- ctx:
		default:
			e.logger.Debug().Str("symbol", ctx.Symbol).Msg("subscriber slow, context dropped")
		}
	}
}
