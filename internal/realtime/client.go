// internal/realtime/client.go
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/netwarden/backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Command is an inbound mutation request sent over an open subscription.
// It goes through the same authorization as the equivalent HTTP call.
type Command struct {
	Action     string `json:"action"`
	RequestID  string `json:"request_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	IntruderID string `json:"intruder_id,omitempty"`
	Note       string `json:"note,omitempty"`
}

// CommandHandler executes client commands. Returned errors are reported to
// the issuing client only; they never close the connection.
type CommandHandler interface {
	HandleCommand(client *Client, cmd Command) error
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	handler CommandHandler

	id        string
	principal *models.Principal
	topics    []Topic

	connectedAt time.Time
	logger      *logrus.Entry
}

func NewClient(hub *Hub, conn *websocket.Conn, principal *models.Principal, topics []Topic, handler CommandHandler) *Client {
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		handler:     handler,
		id:          id,
		principal:   principal,
		topics:      topics,
		connectedAt: time.Now(),
		logger: logrus.WithFields(logrus.Fields{
			"component": "realtime.client",
			"client_id": id,
			"user_id":   principal.ID,
		}),
	}
}

func (c *Client) Principal() *models.Principal {
	return c.principal
}

func (c *Client) Topics() []Topic {
	return c.topics
}

// Send queues an event for this client only. Returns false when the buffer
// is full; the hub loop will disconnect the client on the next broadcast.
func (c *Client) Send(event Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal direct event")
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendError reports a failed command back to the issuing client.
func (c *Client) SendError(code, message string) {
	c.Send(Event{
		Type:      "error",
		Data:      map[string]string{"code": code, "message": message},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadPump pumps inbound messages from the websocket connection. Commands
// are dispatched to the handler; malformed frames are reported and skipped.
func (c *Client) ReadPump() {
	defer func() {
		c.logger.WithField("connection_duration", time.Since(c.connectedAt).String()).
			Info("Client disconnected")
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("Unexpected close")
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.SendError("VALIDATION_ERROR", "malformed command")
			continue
		}

		if cmd.Action == "" || cmd.Action == "heartbeat" {
			continue
		}

		if c.handler == nil {
			c.SendError("UNAVAILABLE", "commands not supported on this endpoint")
			continue
		}

		if err := c.handler.HandleCommand(c, cmd); err != nil {
			c.logger.WithError(err).WithField("action", cmd.Action).Warn("Command rejected")
		}
	}
}

// WritePump pumps queued events to the websocket connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Debug("Write failed")
				return
			}

			// Drain queued messages as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case msg := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
