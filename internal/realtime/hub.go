// internal/realtime/hub.go
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

type envelope struct {
	topic   Topic
	payload []byte
}

// Hub owns all websocket clients and routes published events to the
// subscribers of the event's topic. A single Run goroutine serializes
// register, unregister and broadcast so topic maps need no locking there;
// the mutex guards the read-side accessors.
type Hub struct {
	clients map[*Client]bool
	topics  map[Topic]map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *logrus.Entry
	quit    chan struct{}
	running bool

	totalConnections int64
	eventsPublished  int64
	eventsDropped    int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		topics:     make(map[Topic]map[*Client]bool),
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logrus.WithField("component", "realtime.hub"),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	for _, topic := range client.topics {
		subscribers, ok := h.topics[topic]
		if !ok {
			subscribers = make(map[*Client]bool)
			h.topics[topic] = subscribers
		}
		subscribers[client] = true
	}
	h.totalConnections++
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.id,
		"user_id":       client.principal.ID,
		"topics":        len(client.topics),
		"total_clients": count,
	}).Info("Client registered")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.detachLocked(client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.id,
		"total_clients": count,
	}).Info("Client unregistered")
}

func (h *Hub) detachLocked(client *Client) {
	for _, topic := range client.topics {
		if subscribers, ok := h.topics[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.topics, topic)
			}
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.topics[env.topic]))
	for client := range h.topics[env.topic] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	var dropped []*Client
	for _, client := range subscribers {
		select {
		case client.send <- env.payload:
		default:
			// Slow consumer: delivery is at-most-once, drop the client
			// rather than block the hub.
			dropped = append(dropped, client)
		}
	}

	if len(dropped) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range dropped {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			h.detachLocked(client)
			close(client.send)
			h.eventsDropped++
		}
	}
	h.mu.Unlock()

	for _, client := range dropped {
		h.logger.WithField("client_id", client.id).Warn("Client send buffer full, disconnecting")
	}
}

// Publish implements Bus. Marshal failures are logged and dropped; the bus
// never reports errors back to the caller.
func (h *Hub) Publish(topic Topic, eventType string, data interface{}) {
	event := NewEvent(eventType, topic, data)
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).WithField("event_type", eventType).Error("Failed to marshal event")
		return
	}

	h.mu.Lock()
	h.eventsPublished++
	h.mu.Unlock()

	select {
	case h.broadcast <- envelope{topic: topic, payload: payload}:
	case <-h.quit:
	}
}

// Register hands a connected client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount reports how many clients hold a subscription to topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.detachLocked(client)
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) Metrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"active_topics":     len(h.topics),
		"total_connections": h.totalConnections,
		"events_published":  h.eventsPublished,
		"events_dropped":    h.eventsDropped,
	}
}
