package dashclient

import (
	"context"

	"go.uber.org/zap"
)

// Telemetry records client events for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

// ZapTelemetry logs events through a zap logger.
type ZapTelemetry struct {
	log *zap.Logger
}

// NewZapTelemetry builds a telemetry recorder backed by log.
func NewZapTelemetry(log *zap.Logger) *ZapTelemetry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapTelemetry{log: log}
}

// Record emits the event at debug level with its payload as a field.
func (t *ZapTelemetry) Record(_ context.Context, event string, payload map[string]any) {
	t.log.Debug(event, zap.Any("payload", payload))
}
