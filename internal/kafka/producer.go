package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer}
}

// Publish writes a single message to the given topic.
func (p *Producer) Publish(topic, key string, value []byte) error {
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// PublishCheckinRecorded streams a recorded check-in to downstream
// consumers (notification service, analytics).
func (p *Producer) PublishCheckinRecorded(topic string, checkin models.CheckIn) error {
	msgBytes, err := json.Marshal(checkin)
	if err != nil {
		return err
	}
	return p.Publish(topic, checkin.TicketCode, msgBytes)
}

// PublishTicketCancelled streams a ticket cancellation event.
func (p *Producer) PublishTicketCancelled(topic string, ticket models.Ticket) error {
	msgBytes, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return p.Publish(topic, ticket.Code, msgBytes)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
