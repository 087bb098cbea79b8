package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/rl1809/order-service/internal/core/domain"
)

// RabbitMQPublisher publishes order events to a topic exchange.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string

	// amqp.Channel must not be used for concurrent publishes
	mu sync.Mutex
}

func NewRabbitMQPublisher(url, exchange, routingKey string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp.Dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Error("failed to close rabbitmq connection", "error", closeErr)
		}
		return nil, fmt.Errorf("conn.Channel: %w", err)
	}

	if exchange != "" {
		err = channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
		if err != nil {
			_ = channel.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("channel.ExchangeDeclare[%s]: %w", exchange, err)
		}
	}

	slog.Info("RabbitMQ connected", "exchange", exchange, "routing_key", routingKey)

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *RabbitMQPublisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(NewOrderCreatedEvent(order))
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    order.ID,
		Type:         EventTypeOrderCreated,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("channel.Publish: %w", err)
	}

	return nil
}

// Close closes the channel and connection for graceful shutdown.
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}

	return nil
}
