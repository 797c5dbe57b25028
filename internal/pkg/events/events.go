// Package events publishes ledger events after a mutation commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Event types, also used as routing keys.
const (
	ChallengeJoined = "challenge.joined"
	ChallengeLeft   = "challenge.left"
	PointsAwarded   = "points.awarded"
	RewardRedeemed  = "reward.redeemed"
)

// Event is the JSON body of a published message.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	RewardID    string    `json:"reward_id,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Balance     int64     `json:"balance"`
	RequestID   string    `json:"request_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// New fills in the id and timestamp of an event.
func New(typ, userID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Delivery is best effort: the ledger state is
// already committed when Publish is called.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// RabbitConfig holds the exchange to publish to.
type RabbitConfig struct {
	URL      string
	Exchange string
}

// RabbitPublisher publishes events to a durable topic exchange.
type RabbitPublisher struct {
	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher dials the broker and declares the exchange.
func NewRabbitPublisher(cfg RabbitConfig) (*RabbitPublisher, error) {
	connection, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitPublisher{
		connection: connection,
		channel:    channel,
		exchange:   cfg.Exchange,
	}, nil
}

// Publish sends e with its type as the routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := Encode(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange, // exchange
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Encode builds the amqp message for e.
func Encode(e Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return amqp.Publishing{
		MessageId:       e.ID,
		Type:            e.Type,
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		Body:            body,
		DeliveryMode:    amqp.Persistent,
		Timestamp:       e.OccurredAt,
	}, nil
}

// Close closes the broker connection.
func (p *RabbitPublisher) Close() error {
	if p.connection == nil {
		return nil
	}
	return p.connection.Close()
}

// Nop discards events.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
