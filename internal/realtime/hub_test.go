// internal/realtime/hub_test.go
package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/backend/internal/models"
)

func newTestClient(hub *Hub, buffer int, topics ...Topic) *Client {
	id := uuid.New().String()
	return &Client{
		hub:  hub,
		send: make(chan []byte, buffer),
		id:   id,
		principal: &models.Principal{
			ID:    uuid.New(),
			Email: "test@example.com",
			Role:  models.RoleEmployee,
		},
		topics:      topics,
		connectedAt: time.Now(),
		logger:      logrus.WithField("client_id", id),
	}
}

func receiveEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	networkID := uuid.New()
	subscriber := newTestClient(hub, 8, NetworkTopic(networkID))
	bystander := newTestClient(hub, 8, NetworkTopic(uuid.New()))
	hub.Register(subscriber)
	hub.Register(bystander)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	hub.Publish(NetworkTopic(networkID), EventJoinRequest, map[string]string{"status": "pending"})

	event := receiveEvent(t, subscriber)
	assert.Equal(t, EventJoinRequest, event.Type)
	assert.Equal(t, NetworkTopic(networkID), event.Topic)

	select {
	case payload := <-bystander.send:
		t.Fatalf("bystander received event: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientReceivesAllSubscribedScopes(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	companyID := uuid.New()
	userID := uuid.New()
	client := newTestClient(hub, 8, CompanyTopic(companyID), UserTopic(userID))
	hub.Register(client)

	require.Eventually(t, func() bool { return hub.SubscriberCount(CompanyTopic(companyID)) == 1 },
		time.Second, 10*time.Millisecond)

	hub.Publish(CompanyTopic(companyID), EventDeviceState, nil)
	hub.Publish(UserTopic(userID), EventNotification, nil)

	first := receiveEvent(t, client)
	second := receiveEvent(t, client)
	assert.ElementsMatch(t, []string{EventDeviceState, EventNotification},
		[]string{first.Type, second.Type})
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	topic := NetworkTopic(uuid.New())
	slow := newTestClient(hub, 1, topic)
	hub.Register(slow)

	require.Eventually(t, func() bool { return hub.SubscriberCount(topic) == 1 },
		time.Second, 10*time.Millisecond)

	// The first event fills the buffer; the second finds it full.
	hub.Publish(topic, EventIntruderDetected, nil)
	hub.Publish(topic, EventIntruderDetected, nil)

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.SubscriberCount(topic))
}

func TestUnregisterDropsSubscription(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	topic := CompanyTopic(uuid.New())
	client := newTestClient(hub, 8, topic)
	hub.Register(client)

	require.Eventually(t, func() bool { return hub.SubscriberCount(topic) == 1 },
		time.Second, 10*time.Millisecond)

	hub.unregister <- client

	require.Eventually(t, func() bool { return hub.SubscriberCount(topic) == 0 },
		time.Second, 10*time.Millisecond)

	// The send channel is closed so WritePump terminates.
	_, open := <-client.send
	assert.False(t, open)
}

func TestStopClosesEveryClient(t *testing.T) {
	hub := NewHub()
	hub.Start()

	client := newTestClient(hub, 8, UserTopic(uuid.New()))
	hub.Register(client)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Stop()

	assert.Zero(t, hub.ClientCount())
	_, open := <-client.send
	assert.False(t, open)
}

func TestQueuedSendDeliveredBeforeBroadcast(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	topic := NetworkTopic(uuid.New())
	client := newTestClient(hub, 8, topic)

	// Frames queued before registration, like the connect hello, are read
	// ahead of anything broadcast afterwards.
	require.True(t, client.Send(NewEvent(EventSnapshot, topic, nil)))
	hub.Register(client)

	require.Eventually(t, func() bool { return hub.SubscriberCount(topic) == 1 },
		time.Second, 10*time.Millisecond)

	hub.Publish(topic, EventJoinRequest, nil)

	first := receiveEvent(t, client)
	second := receiveEvent(t, client)
	assert.Equal(t, EventSnapshot, first.Type)
	assert.Equal(t, EventJoinRequest, second.Type)
}

func TestSendReportsFullBuffer(t *testing.T) {
	client := newTestClient(NewHub(), 1)

	assert.True(t, client.Send(NewEvent(EventSnapshot, UserTopic(uuid.New()), nil)))
	assert.False(t, client.Send(NewEvent(EventSnapshot, UserTopic(uuid.New()), nil)))
}

func TestParseTopic(t *testing.T) {
	id := uuid.New()

	topic, err := ParseTopic("network:" + id.String())
	require.NoError(t, err)
	assert.Equal(t, NetworkTopic(id), topic)
	assert.Equal(t, "network", topic.Kind())

	resource, err := topic.ResourceID()
	require.NoError(t, err)
	assert.Equal(t, id, resource)

	for _, raw := range []string{
		"network",
		"network:",
		"network:not-a-uuid",
		"galaxy:" + id.String(),
		"",
	} {
		_, err := ParseTopic(raw)
		assert.Error(t, err, "scope %q should be rejected", raw)
	}
}
