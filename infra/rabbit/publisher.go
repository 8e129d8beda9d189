package rabbit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

var ErrConnectionFail = errors.New("rabbit: connection failed")

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends outbox messages to a topic exchange. The routing key
// is "<kind>.<key>" so consumers can bind per kind or per market.
type Publisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
}

// GetConnection dials url until it succeeds or timeout passes.
func GetConnection(url string, timeout time.Duration) (*amqp091.Connection, error) {
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			return nil, ErrConnectionFail
		default:
			conn, err := amqp091.Dial(url)
			if err != nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return conn, nil
		}
	}
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := GetConnection(url, time.Minute)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func RoutingKey(m exitwal.Message) string {
	if m.Key == "" {
		return string(m.Kind)
	}
	return string(m.Kind) + "." + m.Key
}

func (p *Publisher) Publish(ctx context.Context, m exitwal.Message) error {
	body, err := m.Body()
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(m), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    m.ID,
		Type:         string(m.Kind),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
