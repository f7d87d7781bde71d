package message_broaker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQ dials the broker and declares a durable direct exchange. Queues
// are declared and bound lazily, one per routing key, on first use.
func NewRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		declared: make(map[string]bool),
	}, nil
}

func (r *RabbitMQ) ensureQueue(queue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.declared[queue] {
		return nil
	}
	if _, err := r.channel.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return errors.Wrapf(err, "declare queue %q", queue)
	}
	if err := r.channel.QueueBind(
		queue,
		queue,
		r.exchange,
		false,
		nil,
	); err != nil {
		return errors.Wrapf(err, "bind queue %q", queue)
	}
	r.declared[queue] = true
	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, queue string, message []byte) error {
	if err := r.ensureQueue(queue); err != nil {
		return err
	}
	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
