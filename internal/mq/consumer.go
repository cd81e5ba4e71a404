package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение. Ошибка означает, что сообщение
// отброшено: повторная доставка некорректной телеметрии не поможет.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение шины.
type Delivery struct {
	// Topic — топик шины, восстановленный из routing key.
	Topic string

	// Body — тело сообщения как есть.
	Body []byte

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer доставляет сообщения очереди линии в Handler.
type Consumer struct {
	conn      *Connection
	logger    *slog.Logger
	topology  LineTopology
	handler   Handler
	prefetch  int
	reconnect <-chan struct{}

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Topology — очередь линии и привязки.
	Topology LineTopology

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений без ack (default: 50).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:      conn,
		logger:    logger.With("queue", cfg.Topology.Queue()),
		topology:  cfg.Topology,
		handler:   cfg.Handler,
		prefetch:  prefetch,
		reconnect: conn.ReconnectNotify(),
	}
}

// Start потребляет сообщения до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	return c.consume(ctx)
}

func (c *Consumer) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started")

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting")
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.reconnect:
		c.logger.Info("reconnected, restarting consumer")
		return nil
	}
}

// setupConsume заново объявляет очередь: после разрыва auto-delete очередь исчезает.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := c.topology.Declare(ch); err != nil {
		return nil, err
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.topology.Queue(), // queue
		"",                 // consumer tag (auto-generated)
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{
		Topic: RoutingKeyToTopic(raw.RoutingKey),
		Body:  raw.Body,
		Raw:   raw,
	}

	if err := c.handler(ctx, delivery); err != nil {
		c.logger.Warn("message dropped",
			"topic", delivery.Topic,
			"error", err,
		)
		raw.Nack(false, false)
		return
	}

	raw.Ack(false)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
