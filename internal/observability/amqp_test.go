package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	env        EventEnvelope
	headers    map[string]string
	err        error
}

func (c *capturePublisher) PublishEnvelope(ctx context.Context, routingKey string, env EventEnvelope, headers map[string]string) error {
	c.routingKey = routingKey
	c.env = env
	c.headers = headers
	return c.err
}

func TestPublishEventForwardsEnvelope(t *testing.T) {
	capture := &capturePublisher{}
	SetPublisher(capture)
	defer SetPublisher(nil)

	env := EventEnvelope{EventType: "ws_events", EventName: "ws_connect", Payload: map[string]interface{}{"conn_id": "c1"}}
	headers := BuildHeaders("req-1", "trace-1")

	require.NoError(t, PublishEvent(context.Background(), RoutingKeyWS, env, headers))
	assert.Equal(t, RoutingKeyWS, capture.routingKey)
	assert.Equal(t, env, capture.env)
	assert.Equal(t, "req-1", capture.headers["x-request-id"])
	assert.Equal(t, "trace-1", capture.headers["trace_id"])
}

func TestPublishEventWithoutPublisherIsNoOp(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), RoutingKeyMessages, EventEnvelope{}, nil))
}

func TestPublishEventPropagatesFailure(t *testing.T) {
	capture := &capturePublisher{err: errors.New("broker down")}
	SetPublisher(capture)
	defer SetPublisher(nil)

	assert.Error(t, PublishEvent(context.Background(), RoutingKeyWS, EventEnvelope{EventName: "ws_error"}, nil))
}

func TestBuildHeadersOmitsEmptyValues(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "req"}, BuildHeaders("req", ""))
}
