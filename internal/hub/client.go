package hub

import (
	"encoding/json"
	"time"

	"shine/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client represents a single websocket connection. UserID is nil for
// anonymous connections, which stay connected but are never auto-joined to
// a user room.
type Client struct {
	ID     string
	UserID *uint

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient wraps an upgraded websocket connection. An authenticated
// client is joined to its personal user room immediately.
func NewClient(h *Hub, conn *websocket.Conn, userID *uint) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.Track(c)
	if userID != nil {
		h.Join(UserRoom(*userID), c)
	}
	return c
}

// clientFrame is an inbound control message. Join/leave frames are
// processed in submission order for a given connection because they all
// run on that connection's read pump.
type clientFrame struct {
	Type           string `json:"type"`
	PostID         uint   `json:"postId,omitempty"`
	ConversationID uint   `json:"conversationId,omitempty"`
	Username       string `json:"username,omitempty"`
}

// ReadPump consumes inbound frames until the connection drops, then
// removes the client from every room it joined.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Get().Debug().Err(err).Str("client", c.ID).Msg("websocket closed unexpectedly")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame clientFrame) {
	switch frame.Type {
	case "join_post":
		if frame.PostID != 0 {
			c.hub.Join(PostRoom(frame.PostID), c)
		}
	case "leave_post":
		if frame.PostID != 0 {
			c.hub.Leave(PostRoom(frame.PostID), c)
		}
	case "join_conversation":
		if frame.ConversationID != 0 {
			c.hub.Join(ConversationRoom(frame.ConversationID), c)
		}
	case "leave_conversation":
		if frame.ConversationID != 0 {
			c.hub.Leave(ConversationRoom(frame.ConversationID), c)
		}
	case "typing":
		c.forwardTyping("user_typing", frame)
	case "stop_typing":
		c.forwardTyping("user_stop_typing", frame)
	}
}

// forwardTyping relays an ephemeral typing indicator to the other members
// of the conversation room. Nothing is persisted and the sender never
// receives its own indicator back.
func (c *Client) forwardTyping(eventType string, frame clientFrame) {
	if frame.ConversationID == 0 || c.UserID == nil {
		return
	}
	payload := map[string]interface{}{
		"userId":         *c.UserID,
		"conversationId": frame.ConversationID,
	}
	if eventType == "user_typing" {
		payload["username"] = frame.Username
	}
	c.hub.BroadcastExcept(ConversationRoom(frame.ConversationID), c, Event{
		Type:    eventType,
		Payload: payload,
	})
}

// WritePump pushes hub events to the connection and keeps it alive with
// pings. Exits when the send channel is closed by Drop or a write fails.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
