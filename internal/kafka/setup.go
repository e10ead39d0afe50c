package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// TopicConfigs возвращает конфигурацию нужных сервису топиков.
func TopicConfigs(topic string) []kafkaGo.TopicConfig {
	if topic == "" {
		topic = TopicSubscriptionStatusChanged
	}
	return []kafkaGo.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}
}

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka.
func EnsureKafkaTopics(ctx context.Context, brokers []string, required []kafkaGo.TopicConfig, log *logger.Logger) error {
	log.Infow("Ensuring Kafka topics exist...", "topics", topicNames(required))

	if len(brokers) == 0 || brokers[0] == "" {
		log.Errorw("Kafka broker address is empty")
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if err := validateBroker(broker); err != nil {
		log.Errorw("Invalid Kafka broker address", "broker", broker, "error", err)
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", broker)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", broker, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	// Топики создаются через контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	controllerConn, err := kafkaGo.DialContext(connCtx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Errorw("Failed to connect to Kafka controller", "controller", controller.Host, "error", err)
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer controllerConn.Close()

	partitions, err := controllerConn.ReadPartitions()
	if err != nil {
		log.Errorw("Failed to read partitions from Kafka", "error", err)
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	missing := missingTopics(required, existing)
	if len(missing) == 0 {
		log.Infow("All required topics already exist.")
		return nil
	}

	log.Infow("Attempting to create topics...", "topics", topicNames(missing))
	if err := controllerConn.CreateTopics(missing...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("One or more topics already existed during creation attempt", "topics", topicNames(missing))
			return nil
		}
		log.Errorw("Failed to create topics", "error", err, "topics", topicNames(missing))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Successfully created topics", "topics", topicNames(missing))
	return nil
}

func validateBroker(broker string) error {
	_, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}
	return nil
}

func missingTopics(required []kafkaGo.TopicConfig, existing map[string]bool) []kafkaGo.TopicConfig {
	var missing []kafkaGo.TopicConfig
	for _, tc := range required {
		if !existing[tc.Topic] {
			missing = append(missing, tc)
		}
	}
	return missing
}

func topicNames(configs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(configs))
	for _, tc := range configs {
		names = append(names, tc.Topic)
	}
	return names
}
