package kafka

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
)

type Writer struct {
	writer *kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// WriteMessage appends one keyed record. Records sharing a key land on the
// same partition, which keeps per-event transition order intact downstream.
func (w *Writer) WriteMessage(ctx context.Context, key, value []byte) error {
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
