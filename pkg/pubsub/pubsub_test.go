package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "messaging:case:42:events", MessagingEventsChannel("42"))
	assert.Equal(t, "portal:case:42:updates", CaseUpdatesChannel("42"))
	assert.Equal(t, "portal:case:*:updates", CaseUpdatesPattern())

	id, ok := CaseIDFromChannel("portal:case:42:updates")
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok = CaseIDFromChannel("portal:room:42")
	assert.False(t, ok)
}

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey("messaging:case:42:events")
	require.NoError(t, err)
	assert.Equal(t, "messaging-events", topic)
	assert.Equal(t, "42", key)

	topic, err = patternToTopic(CaseUpdatesPattern())
	require.NoError(t, err)
	assert.Equal(t, "portal-updates", topic)

	_, _, err = channelToTopicAndKey("bogus")
	assert.Error(t, err)
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{
		{Key: headerEventType, Value: []byte(EventCaseUpdated)},
		{Key: headerCaseID, Value: []byte("42")},
	}
	assert.Equal(t, "42", headerValue(headers, headerCaseID))
	assert.Empty(t, headerValue(headers, "missing"))
}

func TestNewEventHasUniqueID(t *testing.T) {
	a, err := NewEvent(EventMessageCreated, "42", MessageCreatedPayload{ID: 1})
	require.NoError(t, err)
	b, err := NewEvent(EventMessageCreated, "42", MessageCreatedPayload{ID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewPubSubDrivers(t *testing.T) {
	ps, err := NewPubSub(Config{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, &Nop{}, ps)

	_, err = NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRedisPatternSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ps := NewRedisPubSubWithClient(client)
	t.Cleanup(func() { ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ps.SubscribePattern(ctx, CaseUpdatesPattern())
	require.NoError(t, err)

	ev, err := NewEvent(EventCaseUpdated, "", CaseUpdatedPayload{Kind: "status"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, CaseUpdatesChannel("42"), ev))

	select {
	case got := <-ch:
		require.NotNil(t, got)
		assert.Equal(t, EventCaseUpdated, got.Type)
		assert.Equal(t, "42", got.CaseID, "case id is filled from the channel")
		var payload CaseUpdatedPayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "status", payload.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	require.NoError(t, ps.Unsubscribe(ctx, CaseUpdatesPattern()))
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestNopClosesSubscriptions(t *testing.T) {
	n := NewNop()
	ch, err := n.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, n.Publish(context.Background(), "x", &Event{}))
	require.NoError(t, n.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("nop subscription not closed")
	}
}
