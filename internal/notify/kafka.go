package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog/log"

	"github.com/safetrack-gps/safetrack/internal/safety"
)

// KafkaSink publishes breach events to a topic. Delivery reports are only
// logged; a failed delivery is never retried by this sink.
type KafkaSink struct {
	kp    *kafka.Producer
	topic string
	evts  chan kafka.Event
}

func NewKafkaSink(bootstrapServer, topic string) (*KafkaSink, error) {
	kp, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServer,
	})
	if err != nil {
		return nil, err
	}

	s := &KafkaSink{
		kp:    kp,
		topic: topic,
		evts:  make(chan kafka.Event, 1000),
	}

	// delivery notifications
	go func() {
		for e := range s.evts {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Error().Err(ev.TopicPartition.Error).Str("topic", topic).Msg("breach event delivery failed")
				}
			}
		}
	}()

	return s, nil
}

func (s *KafkaSink) Close() {
	s.kp.Flush(5000)
	s.kp.Close()
	close(s.evts)
}

func (s *KafkaSink) PostBreachEvent(ctx context.Context, evt *safety.BreachEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	err = s.kp.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(evt.VehicleID),
		Value: data,
	}, s.evts)
	if err != nil {
		return fmt.Errorf("breach event produce: %w", err)
	}
	return nil
}
