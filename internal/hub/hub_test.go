package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub) *Client {
	c := &Client{ID: "test", hub: h, send: make(chan []byte, 8)}
	h.Track(c)
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	default:
		t.Fatal("expected a queued event")
		return Event{}
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	inRoom := newTestClient(h)
	outside := newTestClient(h)
	h.Join(PostRoom(7), inRoom)

	h.Broadcast(PostRoom(7), Event{Type: "new_comment", Payload: "hi"})

	ev := receive(t, inRoom)
	assert.Equal(t, "new_comment", ev.Type)
	assert.Empty(t, outside.send)
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	sender := newTestClient(h)
	other := newTestClient(h)
	h.Join(ConversationRoom(3), sender)
	h.Join(ConversationRoom(3), other)

	h.BroadcastExcept(ConversationRoom(3), sender, Event{Type: "user_typing"})

	assert.Empty(t, sender.send)
	ev := receive(t, other)
	assert.Equal(t, "user_typing", ev.Type)
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	c := newTestClient(h)
	h.Join(PostRoom(1), c)
	require.Equal(t, 1, h.RoomSize(PostRoom(1)))

	h.Leave(PostRoom(1), c)
	assert.Equal(t, 0, h.RoomSize(PostRoom(1)))

	h.Broadcast(PostRoom(1), Event{Type: "new_comment"})
	assert.Empty(t, c.send)
}

func TestDropRemovesFromAllRoomsAndClosesSend(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	c := newTestClient(h)
	h.Join(PostRoom(1), c)
	h.Join(ConversationRoom(2), c)
	h.Join(UserRoom(3), c)

	h.Drop(c)

	assert.Equal(t, 0, h.RoomSize(PostRoom(1)))
	assert.Equal(t, 0, h.RoomSize(ConversationRoom(2)))
	assert.Equal(t, 0, h.RoomSize(UserRoom(3)))

	_, open := <-c.send
	assert.False(t, open)

	// A second drop of the same client must not panic on a closed channel.
	h.Drop(c)
}

func TestSlowClientDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub(nil)
	defer h.Stop()

	slow := &Client{ID: "slow", hub: h, send: make(chan []byte)} // unbuffered, never read
	h.Track(slow)
	fast := newTestClient(h)
	h.Join(PostRoom(9), slow)
	h.Join(PostRoom(9), fast)

	// Must return immediately even though slow's channel cannot accept.
	h.Broadcast(PostRoom(9), Event{Type: "new_comment"})

	ev := receive(t, fast)
	assert.Equal(t, "new_comment", ev.Type)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "user:5", UserRoom(5))
	assert.Equal(t, "post:12", PostRoom(12))
	assert.Equal(t, "conversation:3", ConversationRoom(3))
}
