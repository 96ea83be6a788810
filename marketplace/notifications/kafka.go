package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes notification and auto-message events as JSON
// to Kafka topics. Delivery failures are logged and swallowed.
type KafkaNotifier struct {
	notifications *kafka.Writer
	messages      *kafka.Writer
}

func NewKafkaNotifier(brokers []string, notificationsTopic, messagesTopic string) *KafkaNotifier {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
		}
	}

	return &KafkaNotifier{
		notifications: newWriter(notificationsTopic),
		messages:      newWriter(messagesTopic),
	}
}

type notificationEvent struct {
	UserID    string         `json:"user_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type autoMessageEvent struct {
	UserID    string            `json:"user_id"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, eventType string, payload map[string]any) {
	n.publish(ctx, n.notifications, userID, notificationEvent{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}

func (n *KafkaNotifier) SendAutoMessage(ctx context.Context, userID, template string, vars map[string]string) {
	n.publish(ctx, n.messages, userID, autoMessageEvent{
		UserID:    userID,
		Template:  template,
		Variables: vars,
		CreatedAt: time.Now(),
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, writer *kafka.Writer, key string, event any) {
	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal notification event",
			slog.String("topic", writer.Topic),
			slog.Any("error", err))
		return
	}

	if err := writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		slog.Warn("Failed to publish notification event",
			slog.String("topic", writer.Topic),
			slog.String("user_id", key),
			slog.Any("error", err))
	}
}

func (n *KafkaNotifier) Close() error {
	if err := n.notifications.Close(); err != nil {
		return err
	}
	return n.messages.Close()
}
