package rabbit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared string
	sent     []published
	closed   bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp091.Table) error {
	c.declared = name + ":" + kind
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "engine")
	require.NoError(t, err)
	assert.Equal(t, "engine:topic", ch.declared)

	m := exitwal.Message{ID: "abc", Kind: exitwal.KindOrder, Key: "BTCUSD", Payload: json.RawMessage(`{"event":"put"}`)}
	require.NoError(t, p.Publish(context.Background(), m))
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, "engine", got.exchange)
	assert.Equal(t, "orders.BTCUSD", got.key)
	assert.Equal(t, "abc", got.msg.MessageId)
	assert.Equal(t, amqp091.Persistent, got.msg.DeliveryMode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "orders", body["kind"])
	assert.Equal(t, map[string]any{"event": "put"}, body["payload"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestRoutingKeyWithoutKey(t *testing.T) {
	assert.Equal(t, "deals", RoutingKey(exitwal.Message{Kind: exitwal.KindDeal}))
}
