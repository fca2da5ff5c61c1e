package recorder

import (
	"context"

	"github.com/RonoHenry/AgentICTrader/internal/journal"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordEvents(context.Context, []model.Event) error        { return nil }
func (n *NoopRecorder) RecordContext(context.Context, model.SignalContext) error { return nil }
func (n *NoopRecorder) Close() error                                             { return nil }

func (n *NoopRecorder) LatestContext(context.Context, string) (model.SignalContext, bool, error) {
	return model.SignalContext{}, false, nil
}

func (n *NoopRecorder) QueryEvents(context.Context, string, model.Timeframe, journal.Query) ([]model.Event, error) {
	return nil, nil
}
