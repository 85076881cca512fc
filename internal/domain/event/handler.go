package event

import (
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case TransferQueued:
		h.logger.Info("transfer queued",
			zap.Int64("transfer_id", e.Record.ID),
			zap.String("url", e.Record.Spec.URL),
			zap.String("kind", e.Record.Spec.Kind.String()),
		)
	case TransferStarted:
		h.logger.Info("transfer started",
			zap.Int64("transfer_id", e.Record.ID),
			zap.String("run_id", e.RunID),
			zap.Int64("done_bytes", e.Record.DoneBytes),
			zap.Bool("resuming", e.Record.Resuming),
		)
	case TransferProgress:
		h.logger.Debug("transfer progress",
			zap.Int64("transfer_id", e.Record.ID),
			zap.String("progress", e.Presentation.Subtext),
		)
	case TransferUpdated:
		h.logger.Debug("transfer updated",
			zap.Int64("transfer_id", e.Record.ID),
			zap.Stringer("status", e.Record.Status),
		)
	case TransferPaused:
		h.logger.Info("transfer paused",
			zap.Int64("transfer_id", e.Record.ID),
			zap.Stringer("status", e.Record.Status),
			zap.Int64("done_bytes", e.Record.DoneBytes),
		)
	case TransferFinished:
		fields := []zap.Field{
			zap.Int64("transfer_id", e.Record.ID),
			zap.String("run_id", e.RunID),
			zap.Stringer("status", e.Record.Status),
			zap.Stringer("outcome", e.Outcome),
			zap.Duration("duration", e.Duration),
		}
		if e.Outcome.IsFailure() {
			h.logger.Warn("transfer failed", fields...)
		} else {
			h.logger.Info("transfer finished", fields...)
		}
	case TransferRemoved:
		h.logger.Debug("transfer removed", zap.Int64("transfer_id", e.ID))
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}
