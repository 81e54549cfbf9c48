package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/studygloqe/relay/internal/relay"
)

// Config holds the connection settings shared by the consumer and the
// producer. APIKey/APISecret enable SASL/PLAIN over TLS (managed-cloud
// brokers); leaving them empty dials in plaintext for local development.
type Config struct {
	BootstrapServer string
	APIKey          string
	APISecret       string
	Topic           string
	ConsumerGroup   string
}

const (
	defaultTopic         = "studygloqe-quiz-events"
	defaultConsumerGroup = "studygloqe-web-clients"

	connectAttempts = 8
	initialBackoff  = 100 * time.Millisecond
	dialTimeout     = 10 * time.Second
)

// Consumer owns the process's single consumer connection to the event
// broker. Connect establishes it with bounded retry, Run reads messages and
// hands decoded events to the dispatcher, Disconnect tears it down.
type Consumer struct {
	config     Config
	dispatcher *relay.Dispatcher

	mu        sync.Mutex
	reader    *kafka.Reader
	connected bool
}

// NewConsumer validates the configuration and creates a Consumer. It does
// not touch the network; call Connect from the composition root.
func NewConsumer(config Config, dispatcher *relay.Dispatcher) (*Consumer, error) {
	if config.BootstrapServer == "" {
		return nil, fmt.Errorf("kafka bootstrap server address is required")
	}
	if config.Topic == "" {
		config.Topic = defaultTopic
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaultConsumerGroup
	}
	return &Consumer{config: config, dispatcher: dispatcher}, nil
}

// dialer builds the kafka dialer, with SASL/PLAIN and TLS when credentials
// are configured.
func (c *Consumer) dialer() *kafka.Dialer {
	d := &kafka.Dialer{
		Timeout:   dialTimeout,
		DualStack: true,
	}
	if c.config.APIKey != "" {
		d.SASLMechanism = plain.Mechanism{
			Username: c.config.APIKey,
			Password: c.config.APISecret,
		}
		d.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return d
}

// Connect probes the broker and creates the topic reader, retrying up to
// connectAttempts times with doubling backoff. On exhaustion it returns the
// last error so the caller can log it and keep the process running in
// degraded mode (HTTP endpoints stay up, no live events).
func (c *Consumer) Connect(ctx context.Context) error {
	dialer := c.dialer()
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", c.config.BootstrapServer)
		if err == nil {
			conn.Close()

			c.mu.Lock()
			c.reader = kafka.NewReader(kafka.ReaderConfig{
				Brokers:     []string{c.config.BootstrapServer},
				GroupID:     c.config.ConsumerGroup,
				Topic:       c.config.Topic,
				Dialer:      dialer,
				MinBytes:    1,
				MaxBytes:    10e6, // 10MB
				MaxWait:     500 * time.Millisecond,
				StartOffset: kafka.LastOffset,
			})
			c.connected = true
			c.mu.Unlock()

			log.Printf("broker: consumer connected to %s (topic=%s group=%s)",
				c.config.BootstrapServer, c.config.Topic, c.config.ConsumerGroup)
			return nil
		}

		lastErr = err
		log.Printf("broker: connect attempt %d/%d failed: %v", attempt, connectAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("connect to kafka after %d attempts: %w", connectAttempts, lastErr)
}

// Connected reports whether the consumer currently holds a broker
// connection.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run reads messages from the subscribed topic until the context is
// cancelled or the reader is closed. Each payload is decoded as an Event
// and handed to the dispatcher; malformed payloads are logged and dropped.
// Dispatch never blocks on a slow stream, so the read loop keeps pace with
// the broker regardless of client behaviour.
func (c *Consumer) Run(ctx context.Context) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
				return
			}
			log.Printf("broker: read error: %v", err)
			continue
		}

		event, err := relay.ParseEvent(msg.Value)
		if err != nil {
			log.Printf("broker: dropping malformed message at offset %d: %v", msg.Offset, err)
			continue
		}

		log.Printf("broker: event %s", event.Type)
		c.dispatcher.Dispatch(event)
	}
}

// Disconnect closes the broker connection if open. Idempotent; safe to
// call before Connect.
func (c *Consumer) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		c.connected = false
		return nil
	}

	reader := c.reader
	c.reader = nil
	c.connected = false

	if err := reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}
	log.Println("broker: consumer disconnected")
	return nil
}
