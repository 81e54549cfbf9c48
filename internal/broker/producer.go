package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// eventSource identifies this process in published event envelopes.
const eventSource = "studygloqe-relay"

// Producer publishes events to the relay's topic so in-process callers
// (and the publish endpoint) can emit events alongside external producers.
type Producer struct {
	mu     sync.Mutex
	writer *kafka.Writer
	closed bool
}

// NewProducer creates a Producer for the configured topic.
func NewProducer(config Config) (*Producer, error) {
	if config.BootstrapServer == "" {
		return nil, fmt.Errorf("kafka bootstrap server address is required")
	}
	if config.Topic == "" {
		config.Topic = defaultTopic
	}

	transport := &kafka.Transport{DialTimeout: dialTimeout}
	if config.APIKey != "" {
		transport.SASL = plain.Mechanism{
			Username: config.APIKey,
			Password: config.APISecret,
		}
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.BootstrapServer),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
		Transport:    transport,
	}

	return &Producer{writer: writer}, nil
}

// Publish wraps the payload in the relay's event envelope and writes it to
// the topic, keyed by the payload's userId so events for one user land on
// one partition.
func (p *Producer) Publish(ctx context.Context, eventType string, data map[string]any) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.Unlock()

	msg, err := buildMessage(eventType, data)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

// buildMessage assembles the Kafka message for one event: an envelope with
// type, data, timestamp and source, keyed and tagged by the target user.
func buildMessage(eventType string, data map[string]any) (kafka.Message, error) {
	envelope := map[string]any{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    eventSource,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	key := "anonymous"
	headerUser := "unknown"
	if uid, ok := data["userId"].(string); ok && uid != "" {
		key = uid
		headerUser = uid
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "user-id", Value: []byte(headerUser)},
		},
	}, nil
}

// Close shuts down the underlying writer. Idempotent.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
