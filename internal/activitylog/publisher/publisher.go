package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/requestcontext"
)

// Producer is the slice of the Kafka producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Notification is the payload announced for every recorded entry. The
// notification service builds emails and in-app alerts from it.
type Notification struct {
	ID            string                `json:"id"`
	EventType     models.EventType      `json:"eventType"`
	LogCategory   models.LogCategory    `json:"logCategory"`
	AudienceTypes []models.AudienceType `json:"audienceTypes"`
	VersionID     string                `json:"versionId"`
	VersionLabel  string                `json:"versionLabel,omitempty"`
	ActorID       string                `json:"actorId"`
	PlainText     string                `json:"plainText"`
	Timestamp     time.Time             `json:"timestamp"`
}

// KafkaPublisher announces recorded entries on a topic keyed by version id,
// so all notifications for a version stay in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e *models.EventRecord) error {
	payload, err := json.Marshal(Notification{
		ID:            e.ID,
		EventType:     e.EventType,
		LogCategory:   e.LogCategory,
		AudienceTypes: e.AudienceTypes,
		VersionID:     e.VersionID,
		VersionLabel:  e.VersionLabel,
		ActorID:       e.ActorID,
		PlainText:     e.PlainText,
		Timestamp:     e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	headers := map[string]string{"event_type": string(e.EventType)}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		headers["request_id"] = requestID
	}
	return p.producer.Produce(ctx, p.topic, []byte(e.VersionID), payload, headers)
}
