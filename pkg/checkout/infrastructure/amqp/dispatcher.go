// Package amqp publishes domain events to a RabbitMQ topic exchange.
// Unconfigured (empty URL) it degrades to a no-op, so local runs do not
// need a broker.
package amqp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/service"
)

const publishTimeout = 5 * time.Second

type Dispatcher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewDispatcher(url, exchange string) (*Dispatcher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Wrap(err, "declare exchange")
	}
	return &Dispatcher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (d *Dispatcher) Dispatch(event service.Event) error {
	if d == nil || d.ch == nil {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	key := "checkout." + event.Type()
	if err := d.ch.PublishWithContext(ctx, d.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	}); err != nil {
		return errors.Wrap(err, "publish event")
	}

	log.WithFields(log.Fields{"key": key}).Debug("event published")
	return nil
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	if d.ch != nil {
		_ = d.ch.Close()
	}
	if d.conn != nil {
		_ = d.conn.Close()
	}
}
