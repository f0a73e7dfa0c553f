package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// amqpChannel is the part of *amqp091.Channel the publisher needs.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// RabbitPublisher mirrors realtime events onto RabbitMQ queues.
// Events listed as specific get their own queue; the rest share <prefix>_events.
type RabbitPublisher struct {
	conn           *amqp091.Connection
	channel        amqpChannel
	prefix         string
	specificEvents map[string]bool

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitPublisher dials url and opens a channel.
func NewRabbitPublisher(url, prefix string, specificEvents []string) (*RabbitPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("RabbitMQ URL cannot be empty")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open RabbitMQ channel: %w", err)
	}
	p := newRabbitPublisher(ch, prefix, specificEvents)
	p.conn = conn
	log.Info().Str("prefix", p.prefix).Interface("specificEvents", specificEvents).Msg("RabbitMQ connection established.")
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, prefix string, specificEvents []string) *RabbitPublisher {
	if prefix == "" {
		prefix = "helpdesk"
	}
	specific := make(map[string]bool, len(specificEvents))
	for _, e := range specificEvents {
		specific[strings.TrimSpace(e)] = true
	}
	return &RabbitPublisher{
		channel:        ch,
		prefix:         prefix,
		specificEvents: specific,
		declared:       make(map[string]bool),
	}
}

// QueueName returns the queue an event is routed to.
func (p *RabbitPublisher) QueueName(event string) string {
	if p.specificEvents[event] {
		return p.prefix + "_" + strings.ReplaceAll(strings.ToLower(event), ":", "_")
	}
	return p.prefix + "_events"
}

func (p *RabbitPublisher) Broadcast(tenantID, event string, payload interface{}) {
	body, err := json.Marshal(Envelope{Event: event, TenantID: tenantID, Data: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal event for RabbitMQ")
		return
	}
	queue := p.QueueName(event)
	if err := p.publish(queue, body); err != nil {
		log.Error().Err(err).Str("event", event).Str("queue", queue).Str("tenantID", tenantID).Msg("Failed to publish to RabbitMQ")
		return
	}
	log.Debug().Str("event", event).Str("queue", queue).Msg("Published event to RabbitMQ")
}

func (p *RabbitPublisher) publish(queue string, body []byte) error {
	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[queue] {
		if _, err := p.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("could not declare queue %s: %w", queue, err)
		}
		p.declared[queue] = true
	}
	return p.channel.Publish("", queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close shuts the channel and connection down.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing RabbitMQ channel")
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
