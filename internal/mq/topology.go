package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Factoria/internal/state"
)

const defaultQueueMaxLength = 1000

// TopicToRoutingKey переводит топик шины в routing key topic exchange.
func TopicToRoutingKey(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p == state.Wildcard {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// RoutingKeyToTopic — обратное отображение для доставленных сообщений.
func RoutingKeyToTopic(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

// LineTopology — очередь линии и её привязки к exchange.
type LineTopology struct {
	// Root — корень топиков, он же имя exchange.
	Root string

	// LineID — линия, для которой объявляется очередь.
	LineID string

	// MaxLength — x-max-length очереди (default: 1000).
	// Брокер отбрасывает самые старые сообщения при переполнении.
	MaxLength int
}

// Exchange возвращает имя topic exchange.
func (t LineTopology) Exchange() string {
	if t.Root == "" {
		return state.DefaultTopicRoot
	}
	return t.Root
}

// Queue возвращает имя очереди линии.
func (t LineTopology) Queue() string {
	return t.Exchange() + "." + t.LineID + ".commander"
}

// Bindings возвращает routing key, на которые подписана очередь.
func (t LineTopology) Bindings() []string {
	topics := state.SubscriptionTopics(t.Exchange(), t.LineID)
	keys := make([]string, 0, len(topics))
	for _, topic := range topics {
		keys = append(keys, TopicToRoutingKey(topic))
	}
	return keys
}

// Declare объявляет exchange, очередь линии и привязки. Идемпотентно.
func (t LineTopology) Declare(ch *amqp.Channel) error {
	// 1. Exchange
	if err := DeclareExchange(ch, t.Exchange()); err != nil {
		return err
	}

	// 2. Очередь
	maxLength := t.MaxLength
	if maxLength <= 0 {
		maxLength = defaultQueueMaxLength
	}
	_, err := ch.QueueDeclare(
		t.Queue(), // name
		false,     // durable
		true,      // delete when unused
		false,     // exclusive
		false,     // no-wait
		amqp.Table{"x-max-length": int32(maxLength)},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue(), err)
	}

	// 3. Привязки
	for _, key := range t.Bindings() {
		if err := ch.QueueBind(t.Queue(), key, t.Exchange(), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", t.Queue(), key, err)
		}
	}

	return nil
}

// DeclareExchange объявляет durable topic exchange.
func DeclareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// TopologyInfo описывает топологию для лога запуска.
func TopologyInfo(lines []LineTopology) string {
	var b strings.Builder
	for i, t := range lines {
		if i == 0 {
			fmt.Fprintf(&b, "%s (topic)\n", t.Exchange())
		}
		fmt.Fprintf(&b, "  └── %s\n", t.Queue())
		for _, key := range t.Bindings() {
			fmt.Fprintf(&b, "        %s\n", key)
		}
	}
	return b.String()
}
