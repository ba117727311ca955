package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaProducer writes message.sent events to a Kafka topic.
type KafkaProducer struct {
	writer *kafkago.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &KafkaProducer{writer: w}
}

// MessageSent publishes one event, keyed by conversation so a consumer sees
// each conversation's events in order.
func (p *KafkaProducer) MessageSent(ctx context.Context, ev MessageSent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal message.sent: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(ev.ConversationID),
		Value: b,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message.sent: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
