// Package notifier publishes fire-and-forget notification messages to
// RabbitMQ. Delivery is a downstream consumer's concern; a publish failure
// is logged by the caller and never affects the core operation.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names consumed by the notification worker.
const (
	TicketIssuedQueue   = "enrollment.ticket.issued"
	EventPublishedQueue = "enrollment.event.published"
)

// TicketIssued announces a freshly issued ticket.
type TicketIssued struct {
	TicketID      string `json:"ticket_id"`
	EventID       string `json:"event_id"`
	EventName     string `json:"event_name"`
	ParticipantID string `json:"participant_id"`
}

// EventPublished announces an event going live.
type EventPublished struct {
	EventID     string `json:"event_id"`
	EventName   string `json:"event_name"`
	OrganizerID string `json:"organizer_id"`
}

// Notifier wraps an AMQP connection and channel.
type Notifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// New dials the broker and declares the queues.
func New(url string) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n := &Notifier{conn: conn, channel: channel}
	for _, queue := range []string{TicketIssuedQueue, EventPublishedQueue} {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			n.Close()
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}
	return n, nil
}

// PublishTicketIssued enqueues a ticket notification.
func (n *Notifier) PublishTicketIssued(ctx context.Context, msg TicketIssued) error {
	return n.publish(ctx, TicketIssuedQueue, msg)
}

// PublishEventPublished enqueues a publish announcement.
func (n *Notifier) PublishEventPublished(ctx context.Context, msg EventPublished) error {
	return n.publish(ctx, EventPublishedQueue, msg)
}

func (n *Notifier) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	err = n.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *Notifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
