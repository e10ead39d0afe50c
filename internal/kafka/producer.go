package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// TopicSubscriptionStatusChanged - топик по умолчанию для изменений статуса подписки
const TopicSubscriptionStatusChanged = "subscription_status_changed"

// Producer определяет интерфейс для публикации сообщений в Kafka.
type Producer interface {
	// PublishStatusChange отправляет изменение подписки. Ключ сообщения - UserID,
	// поэтому события одного пользователя попадают в одну партицию и сохраняют порядок.
	PublishStatusChange(ctx context.Context, change models.StatusChange) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// messageWriter - часть *kafka.Writer, которая нужна продюсеру.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}
	if topic == "" {
		topic = TopicSubscriptionStatusChanged
	}

	// Hash балансировщик: один ключ (user id) -> одна партиция
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "topic", topic)
	return newProducer(writer, topic, log), nil
}

func newProducer(writer messageWriter, topic string, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{
		writer: writer,
		topic:  topic,
		log:    log,
	}
}

// PublishStatusChange преобразует изменение в JSON и отправляет в топик.
func (k *kafkaProducer) PublishStatusChange(ctx context.Context, change models.StatusChange) error {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}

	messageValue, err := json.Marshal(change)
	if err != nil {
		k.log.Errorw("Failed to marshal status change to JSON for Kafka", "error", err, "userID", change.UserID, "topic", k.topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: k.topic,
		Key:   []byte(change.UserID),
		Value: messageValue,
		Time:  change.OccurredAt,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(change.Source)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", k.topic, "userID", change.UserID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", k.topic, "userID", change.UserID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Successfully published message to Kafka",
		"topic", k.topic,
		"userID", change.UserID,
		"status", string(change.Status),
		"source", change.Source,
	)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
