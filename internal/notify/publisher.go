// Package notify relays committed booking events to the message broker.
// Email and other deliveries consume the queue downstream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/prmjagdish/schedula/internal/booking"
)

// Message is the wire form of one event_logs row.
type Message struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewMessage(ev booking.EventLog) Message {
	return Message{
		ID:            ev.ID,
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		Payload:       json.RawMessage(ev.Payload),
		CreatedAt:     ev.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// AMQPPublisher publishes persistent JSON messages to a durable queue and
// waits for the broker to confirm each one.
type AMQPPublisher struct {
	ch    *amqp091.Channel
	queue string
}

func NewAMQPPublisher(conn *amqp091.Connection, queue string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    fmt.Sprintf("event-%d", msg.ID),
		Type:         msg.EventType,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event %d: %w", msg.ID, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for event %d: %w", msg.ID, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked event %d", msg.ID)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
