package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	dialTimeout = 30 * time.Second
	appID       = "incident-dispatch"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends dispatch lifecycle events to a durable direct exchange.
type Publisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    Channel
	exchange   string
	routingKey string
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(amqpURL, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// durable, not auto-deleted, not internal, wait for the broker
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to declare exchange %s: %w", exchange, err), ch.Close(), conn.Close())
	}

	log.WithFields(log.Fields{"exchange": exchange, "routing_key": routingKey}).Info("rabbitmq.publisher_ready")
	p := NewPublisherWithChannel(ch, exchange, routingKey)
	p.conn = conn
	return p, nil
}

// NewPublisherWithChannel builds a publisher over an already open channel.
func NewPublisherWithChannel(channel Channel, exchange, routingKey string) *Publisher {
	return &Publisher{channel: channel, exchange: exchange, routingKey: routingKey}
}

// Publish marshals message to JSON and sends it as a persistent delivery.
func (p *Publisher) Publish(message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := amqp.Publishing{
		AppId:        appID,
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Publish(p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", p.exchange, p.routingKey, err)
	}
	return nil
}

// Close shuts the channel, then the connection when the publisher owns one.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Warn("rabbitmq.close_failed")
		return err
	}
	return nil
}
