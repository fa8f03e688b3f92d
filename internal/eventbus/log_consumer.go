package eventbus

import (
	"context"

	"go.uber.org/zap"
)

// LogConsumer logs every event. Failures log at warn level.
type LogConsumer struct {
	logger *zap.Logger
}

func NewLogConsumer(logger *zap.Logger) *LogConsumer { return &LogConsumer{logger: logger} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt Event) error {
	fields := []zap.Field{
		zap.String("id", evt.ID),
		zap.String("schema", evt.Schema),
		zap.String("entity", evt.Entity),
		zap.String("uid", evt.RecordID),
	}
	if evt.Field != "" {
		fields = append(fields, zap.String("field", evt.Field))
	}
	if evt.Failed() {
		fields = append(fields, zap.Bool("stale", evt.Stale), zap.String("error", evt.Error))
		c.logger.Warn("event: "+evt.Type, fields...)
		return nil
	}
	c.logger.Info("event: "+evt.Type, fields...)
	return nil
}
