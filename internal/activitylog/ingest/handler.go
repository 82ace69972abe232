package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"catalogue/internal/activitylog/metrics"
	"catalogue/internal/activitylog/models"
	"catalogue/internal/platform/kafka/consumer"
	dErrors "catalogue/pkg/domain-errors"
	"catalogue/pkg/requestcontext"
)

// Recorder records activity-log entries.
type Recorder interface {
	RecordEvent(ctx context.Context, eventType models.EventType, lc models.LogContext) (*models.EventRecord, error)
}

// Command is the message other services publish to have an entry recorded.
type Command struct {
	EventType models.EventType  `json:"eventType"`
	Context   models.LogContext `json:"context"`
	RequestID string            `json:"requestId,omitempty"`
}

// Handler turns ingest commands into recorded entries. Messages that can
// never succeed are committed and counted; store outages are returned so
// the consumer retries them.
type Handler struct {
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHandler(recorder Recorder, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, metrics: m, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var cmd Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		h.reject(ctx, msg, "malformed", err)
		return nil
	}
	if cmd.RequestID == "" {
		cmd.RequestID = msg.Headers["request_id"]
	}
	if cmd.RequestID != "" {
		ctx = requestcontext.WithRequestID(ctx, cmd.RequestID)
	}

	_, err := h.recorder.RecordEvent(ctx, cmd.EventType, cmd.Context)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeStoreUnavailable):
		return err
	case dErrors.HasCode(err, dErrors.CodeUnsupportedEventType):
		h.reject(ctx, msg, "unsupported_event_type", err)
	case dErrors.HasCode(err, dErrors.CodeConflict):
		h.reject(ctx, msg, "duplicate", err)
	default:
		h.reject(ctx, msg, "invalid", err)
	}
	return nil
}

func (h *Handler) reject(ctx context.Context, msg *consumer.Message, reason string, err error) {
	if h.metrics != nil {
		h.metrics.IncIngestRejected(reason)
	}
	h.logger.WarnContext(ctx, "ingest message rejected",
		"reason", reason,
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
