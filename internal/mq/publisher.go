package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// Publisher публикует сообщения в topic exchange шины.
type Publisher struct {
	conn   *Connection
	root   string
	logger *slog.Logger
}

// NewPublisher создаёт Publisher для корня топиков root.
func NewPublisher(conn *Connection, root string, logger *slog.Logger) *Publisher {
	if root == "" {
		root = state.DefaultTopicRoot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		root:   root,
		logger: logger,
	}
}

// Publish публикует тело в топик шины.
func (p *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	key := TopicToRoutingKey(topic)
	id := uuid.NewString()

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			p.root, // exchange
			key,    // routing key
			false,  // mandatory
			false,  // immediate
			amqp.Publishing{
				ContentType: "application/json",
				MessageId:   id,
				Timestamp:   time.Now(),
				Body:        body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}

		p.logger.Debug("published message",
			"topic", topic,
			"message_id", id,
		)
		return nil
	})
}

// PublishCommand публикует команду AGV в {root}/{line}/command.
func (p *Publisher) PublishCommand(ctx context.Context, lineID string, cmd domain.Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return p.Publish(ctx, state.CommandTopic(p.root, lineID), body)
}

// PublishOrder публикует сообщение заказа в {root}/orders/new.
func (p *Publisher) PublishOrder(ctx context.Context, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("order body is not valid JSON")
	}
	return p.Publish(ctx, state.OrdersTopic(p.root), body)
}
