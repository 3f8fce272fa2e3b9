package kafka

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Publisher writes domain events as JSON to the topic named on each call.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish sends event keyed by key, so events of one seller or day stay ordered
// within a partition.
func (p *Publisher) Publish(ctx context.Context, topic, key string, event any) error {
	msg, err := Message(topic, key, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message builds the kafka message carrying event.
func Message(topic, key string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal event")
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}, nil
}
