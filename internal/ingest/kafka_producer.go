package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/priority-ride/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes booking events keyed by account so one account's
// events stay ordered within a partition.
type KafkaProducer struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.Hash{}}
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

func NewKafkaProducerWithWriter(w MessageWriter) *KafkaProducer {
	return &KafkaProducer{writer: w, timeout: 2 * time.Second}
}

func (k *KafkaProducer) Publish(ctx context.Context, ev models.BookingEvent) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Record.AccountKey),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// DecodeEvent parses a message written by Publish.
func DecodeEvent(m kafka.Message) (models.BookingEvent, error) {
	var ev models.BookingEvent
	err := json.Unmarshal(m.Value, &ev)
	return ev, err
}
