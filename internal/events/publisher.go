package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// Publisher delivers an outbox event to a downstream transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// DispatcherPublisher hands events to in-process subscribers.
type DispatcherPublisher struct {
	dispatcher Dispatcher
}

// NewDispatcherPublisher wraps dispatcher.
func NewDispatcherPublisher(dispatcher Dispatcher) *DispatcherPublisher {
	return &DispatcherPublisher{dispatcher: dispatcher}
}

func (p *DispatcherPublisher) Name() string { return "dispatcher" }

func (p *DispatcherPublisher) Publish(ctx context.Context, event Event) error {
	return p.dispatcher.Publish(ctx, event)
}

// KafkaPublisher writes one message per event; the topic is prefix + event type
// and the ticket id is the partition key so a ticket's events stay ordered.
type KafkaPublisher struct {
	writer      *kafka.Writer
	topicPrefix string
}

// NewKafkaPublisher builds a writer for brokers.
func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicPrefix: topicPrefix,
	}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Topic returns the topic for eventType.
func (p *KafkaPublisher) Topic(eventType EventType) string {
	return p.topicPrefix + string(eventType)
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(event.Type),
		Key:   []byte(strconv.FormatInt(event.TicketID, 10)),
		Value: value,
		Time:  event.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
