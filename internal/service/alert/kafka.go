package alert

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"

	"camwatch/internal/logger"
)

// KafkaNotifier produces an Event per alert, keyed by camera.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	camera   string
	log      *logger.Logger
}

// NewKafkaNotifier creates a producer for brokers (comma separated).
func NewKafkaNotifier(brokers, topic, camera string, log *logger.Logger) (*KafkaNotifier, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"client.id":          "camwatch-" + camera,
		"acks":               "1",
		"linger.ms":          5,
		"message.timeout.ms": 10000,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}

	// errors not tied to a message arrive here
	go func() {
		for ev := range p.Events() {
			if kerr, ok := ev.(kafka.Error); ok {
				log.Warning("Kafka: %v", kerr)
			}
		}
	}()

	log.Info("Kafka producer ready for %s", brokers)
	return &KafkaNotifier{producer: p, topic: topic, camera: camera, log: log}, nil
}

func (n *KafkaNotifier) Send(ctx context.Context, imagePath, caption string) error {
	payload, err := NewEvent(n.camera, imagePath, caption, time.Now()).Marshal()
	if err != nil {
		return errors.Wrap(err, "encode kafka event")
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &n.topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.camera),
		Value:          payload,
	}
	if err := n.producer.Produce(msg, delivery); err != nil {
		return errors.Wrap(err, "kafka produce")
	}

	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return errors.Errorf("unexpected kafka event %v", ev)
		}
		return errors.Wrap(m.TopicPartition.Error, "kafka delivery")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and closes the producer.
func (n *KafkaNotifier) Close() {
	if left := n.producer.Flush(2000); left > 0 {
		n.log.Warning("Kafka: %d messages not delivered", left)
	}
	n.producer.Close()
}
