package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange  string
	key       string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key = exchange, key
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisherWithChannel(ch, "dispatch-exchange", "incident-dispatch")

	require.NoError(t, p.Publish(map[string]string{"stage": "action_executed"}))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "dispatch-exchange", ch.exchange)
	assert.Equal(t, "incident-dispatch", ch.key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "incident-dispatch", msg.AppId)
	assert.Len(t, msg.MessageId, 36)

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "action_executed", body["stage"])
}

func TestPublishErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := NewPublisherWithChannel(ch, "x", "y")
	assert.Error(t, p.Publish("hello"))
	assert.Error(t, p.Publish(func() {}), "unmarshalable message")
}

func TestPublishAssignsDistinctMessageIDs(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisherWithChannel(ch, "x", "y")
	require.NoError(t, p.Publish("a"))
	require.NoError(t, p.Publish("b"))
	assert.NotEqual(t, ch.published[0].MessageId, ch.published[1].MessageId)
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisherWithChannel(ch, "x", "y")
	assert.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
