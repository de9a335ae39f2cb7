package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"shine/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "realtime"

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Room name helpers. Membership is ephemeral and per-connection; it is
// reconstructed by the client on reconnect and carries no authorization
// check beyond the connection-level identity check, so confidential reads
// must still go through the authenticated HTTP path.

func UserRoom(userID uint) string         { return fmt.Sprintf("user:%d", userID) }
func PostRoom(postID uint) string         { return fmt.Sprintf("post:%d", postID) }
func ConversationRoom(convID uint) string { return fmt.Sprintf("conversation:%d", convID) }

// Hub manages named multicast rooms and their clients.
type Hub struct {
	// id tags relayed messages so an instance skips its own publishes.
	id    string
	rooms map[string]map[*Client]bool
	// rooms joined per client, for teardown on disconnect
	memberships map[*Client]map[string]bool
	mu          sync.RWMutex

	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewHub creates a new Hub. A non-nil redis client enables cross-instance
// fan-out over pub/sub; nil keeps broadcasts in-process.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		id:          uuid.NewString(),
		rooms:       make(map[string]map[*Client]bool),
		memberships: make(map[*Client]map[string]bool),
		redisClient: redisClient,
		ctx:         ctx,
		cancel:      cancel,
	}
	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// Join adds a client to a room.
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true

	if _, ok := h.memberships[client]; !ok {
		h.memberships[client] = make(map[string]bool)
	}
	h.memberships[client][room] = true
}

// Leave removes a client from a room.
func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, client)
}

func (h *Hub) leaveLocked(room string, client *Client) {
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.memberships[client]; ok {
		delete(rooms, room)
	}
}

// Drop removes a client from every room it joined and closes its send
// channel. Called once when the connection goes away.
func (h *Hub) Drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.memberships[client]
	if !ok {
		return
	}
	for room := range rooms {
		h.leaveLocked(room, client)
	}
	delete(h.memberships, client)
	close(client.send)
}

// Track registers a client with the hub without joining any room, so an
// anonymous connection still gets torn down through Drop.
func (h *Hub) Track(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.memberships[client]; !ok {
		h.memberships[client] = make(map[string]bool)
	}
}

// Broadcast sends an event to all clients in a room, on this instance and
// (when redis is configured) on every other instance.
func (h *Hub) Broadcast(room string, event Event) {
	h.broadcastLocal(room, event, nil)
	h.publishRelay(room, event)
}

// BroadcastExcept sends an event to all clients in a room except the
// sender. Used for typing indicators, which must never echo back. The
// event still relays to other instances; the sender's connection only
// exists on this one, so remote delivery cannot echo.
func (h *Hub) BroadcastExcept(room string, sender *Client, event Event) {
	h.broadcastLocal(room, event, sender)
	h.publishRelay(room, event)
}

func (h *Hub) publishRelay(room string, event Event) {
	if h.redisClient == nil {
		return
	}
	data, err := json.Marshal(relayMessage{Origin: h.id, Room: room, Event: event})
	if err != nil {
		return
	}
	if err := h.redisClient.Publish(h.ctx, redisPubSubChannel, data).Err(); err != nil {
		logger.Get().Warn().Err(err).Str("room", room).Msg("realtime relay publish failed")
	}
}

func (h *Hub) broadcastLocal(room string, event Event, except *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		logger.Get().Error().Err(err).Str("event", event.Type).Msg("failed to encode realtime event")
		return
	}

	for client := range clients {
		if client == except {
			continue
		}
		// Non-blocking send so a slow client cannot stall the hub; the
		// client's write pump failure path cleans up eventually.
		select {
		case client.send <- messageBytes:
		default:
		}
	}
}

// RoomSize returns the number of clients currently in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

type relayMessage struct {
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Event  Event  `json:"event"`
}

// subscribeRedis delivers events published by other instances to local
// room members only; it never re-publishes. Own publishes come back on
// the channel too and are dropped by origin, since broadcastLocal
// already ran for them.
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err == nil && rm.Origin != h.id {
				h.broadcastLocal(rm.Room, rm.Event, nil)
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop shuts down the redis relay.
func (h *Hub) Stop() {
	h.cancel()
}
