package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"shine/backend/internal/config"
	"shine/backend/internal/conversation"
	"shine/backend/internal/crypto"
	"shine/backend/internal/database"
	"shine/backend/internal/hub"
	"shine/backend/internal/models"
	"shine/backend/internal/notify"
	"shine/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	cipher *crypto.Cipher
	broker *hub.Hub
}

// testAuth replaces the JWT middleware in tests: the acting user rides a
// header instead of a token.
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-User-ID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				c.Set("userID", uint(id))
			}
		}
		c.Next()
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Friendship{},
		&models.BlockedUser{},
		&models.Post{},
		&models.Like{},
		&models.Comment{},
		&models.Notification{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	))
	database.DB = db
	config.AppConfig = &config.Config{JWTSecret: "handler-test-secret"}

	broker := hub.NewHub(nil)
	t.Cleanup(broker.Stop)
	dispatcher := notify.NewDispatcher(db, broker)
	cipher := crypto.NewCipher("handler-test-key")

	postHandler := NewPostHandler(dispatcher)
	commentHandler := NewCommentHandler(broker, dispatcher)
	friendHandler := NewFriendHandler(dispatcher, true)
	messageHandler := NewMessageHandler(broker, cipher)
	wsHandler := NewWSHandler(broker)

	router := gin.New()
	router.Use(testAuth())
	router.GET("/ws", wsHandler.Serve)
	router.POST("/posts/:id/like", postHandler.ToggleLike)
	router.POST("/posts/:id/comments", commentHandler.AddComment)
	router.POST("/friends/requests/:id", friendHandler.SendRequest)
	router.POST("/friends/requests/:id/accept", friendHandler.AcceptRequest)
	router.DELETE("/friends/:id", friendHandler.RemoveFriend)
	router.POST("/blocks/:id", BlockUser)
	router.DELETE("/blocks/:id", UnblockUser)
	router.POST("/messages", messageHandler.SendMessage)
	router.PUT("/messages/conversations/:id/read", messageHandler.MarkConversationRead)
	router.POST("/messages/:id/reactions", messageHandler.ToggleReaction)

	return &testEnv{db: db, router: router, cipher: cipher, broker: broker}
}

func (e *testEnv) do(t *testing.T, userID uint, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-ID", strconv.Itoa(int(userID)))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) newUser(t *testing.T, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *testEnv) newPost(t *testing.T, author models.User, privacy models.PostPrivacy) models.Post {
	t.Helper()
	p := models.Post{AuthorID: author.ID, Content: "post", Privacy: privacy}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) notificationCount(t *testing.T, recipientID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.Notification{}).Where("user_id = ?", recipientID).Count(&count).Error)
	return count
}

func TestBlockSeversFriendshipAndForbidsRequests(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")
	require.NoError(t, env.db.Create(&models.Friendship{
		RequesterID: a.ID, TargetID: b.ID, Status: models.StatusAccepted,
	}).Error)

	w := env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/blocks/%d", b.ID), "")
	require.Equal(t, http.StatusCreated, w.Code)

	var friendships int64
	require.NoError(t, env.db.Model(&models.Friendship{}).Count(&friendships).Error)
	assert.Zero(t, friendships, "block must remove the friendship edge")

	// Neither side can open a new request while the block stands.
	w = env.do(t, b.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", a.ID), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", b.ID), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unblock reopens the path.
	w = env.do(t, a.ID, http.MethodDelete, fmt.Sprintf("/blocks/%d", b.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, b.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", a.ID), "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestFriendRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")

	w := env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", b.ID), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(1), env.notificationCount(t, b.ID))

	// One edge per pair, whichever direction the second attempt takes.
	w = env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", b.ID), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, b.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", a.ID), "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// Only the target may accept.
	w = env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", b.ID)+"/accept", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, b.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", a.ID)+"/accept", "")
	require.Equal(t, http.StatusOK, w.Code)

	var friendship models.Friendship
	require.NoError(t, env.db.First(&friendship).Error)
	assert.Equal(t, models.StatusAccepted, friendship.Status)
	assert.Equal(t, int64(1), env.notificationCount(t, a.ID))

	// Eager conversation bootstrap on accept.
	var conversations int64
	require.NoError(t, env.db.Model(&models.Conversation{}).Count(&conversations).Error)
	assert.Equal(t, int64(1), conversations)
}

func TestSelfFriendRequestRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	w := env.do(t, a.ID, http.MethodPost, fmt.Sprintf("/friends/requests/%d", a.ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleLikeSemantics(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "author")
	liker := env.newUser(t, "liker")
	post := env.newPost(t, author, models.PrivacyPublic)
	likePath := fmt.Sprintf("/posts/%d/like", post.ID)

	// First reaction creates the row and notifies the author.
	w := env.do(t, liker.ID, http.MethodPost, likePath, `{"type":"like"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liked":true`)
	assert.Equal(t, int64(1), env.notificationCount(t, author.ID))

	// Same reaction again toggles it off and frees the unique index.
	w = env.do(t, liker.ID, http.MethodPost, likePath, `{"type":"like"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liked":false`)
	var likes int64
	require.NoError(t, env.db.Unscoped().Model(&models.Like{}).Count(&likes).Error)
	assert.Zero(t, likes)

	// Re-reacting after a toggle-off must succeed.
	w = env.do(t, liker.ID, http.MethodPost, likePath, `{"type":"love"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liked":true`)

	// A different reaction switches the existing row in place.
	w = env.do(t, liker.ID, http.MethodPost, likePath, `{"type":"laugh"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var like models.Like
	require.NoError(t, env.db.First(&like).Error)
	assert.Equal(t, "laugh", like.Type)

	// Reacting to your own post never notifies.
	ownPost := env.newPost(t, author, models.PrivacyPublic)
	before := env.notificationCount(t, author.ID)
	w = env.do(t, author.ID, http.MethodPost, fmt.Sprintf("/posts/%d/like", ownPost.ID), `{"type":"like"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before, env.notificationCount(t, author.ID))
}

func TestSendMessageEncryptsAtRest(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")

	body := fmt.Sprintf(`{"recipientId":%d,"content":"see you at noon"}`, b.ID)
	w := env.do(t, a.ID, http.MethodPost, "/messages", body)
	require.Equal(t, http.StatusCreated, w.Code)

	// The wire payload carries the plaintext.
	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "see you at noon", resp.Content)

	// The row does not.
	var stored models.Message
	require.NoError(t, env.db.First(&stored, resp.ID).Error)
	assert.NotEqual(t, "see you at noon", stored.Content)
	assert.Contains(t, stored.Content, ":")
	assert.Equal(t, "see you at noon", env.cipher.Decrypt(stored.Content))

	var conv models.Conversation
	require.NoError(t, env.db.First(&conv, stored.ConversationID).Error)
	assert.Equal(t, stored.CreatedAt.Unix(), conv.LastMessageAt.Unix())
}

func TestSendMessageBlockedPairForbidden(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")
	require.NoError(t, env.db.Create(&models.BlockedUser{BlockerID: b.ID, BlockedID: a.ID}).Error)

	body := fmt.Sprintf(`{"recipientId":%d,"content":"hello"}`, b.ID)
	w := env.do(t, a.ID, http.MethodPost, "/messages", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkConversationReadFlipsOnlyOthersMessages(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")
	conv, err := conversation.Resolve(env.db, a.ID, b.ID)
	require.NoError(t, err)

	fromA := models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "from a"}
	fromB := models.Message{ConversationID: conv.ID, SenderID: b.ID, Content: "from b"}
	require.NoError(t, env.db.Create(&fromA).Error)
	require.NoError(t, env.db.Create(&fromB).Error)

	w := env.do(t, a.ID, http.MethodPut, fmt.Sprintf("/messages/conversations/%d/read", conv.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, env.db.First(&fromA, fromA.ID).Error)
	require.NoError(t, env.db.First(&fromB, fromB.ID).Error)
	assert.False(t, fromA.Read, "the reader's own messages stay as sent")
	assert.True(t, fromB.Read)

	// Outsiders cannot mark someone else's thread.
	c := env.newUser(t, "carol")
	w = env.do(t, c.ID, http.MethodPut, fmt.Sprintf("/messages/conversations/%d/read", conv.ID), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReactionToggleOnMessage(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")
	conv, err := conversation.Resolve(env.db, a.ID, b.ID)
	require.NoError(t, err)

	msg := models.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "react to me"}
	require.NoError(t, env.db.Create(&msg).Error)
	path := fmt.Sprintf("/messages/%d/reactions", msg.ID)

	w := env.do(t, b.ID, http.MethodPost, path, `{"emoji":"heart"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []uint{b.ID}, resp.Reactions["heart"])

	// Same emoji again removes the reaction. Decode into a fresh struct:
	// unmarshaling an empty object into a populated map merges, it does
	// not clear.
	w = env.do(t, b.ID, http.MethodPost, path, `{"emoji":"heart"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.NotContains(t, cleared.Reactions, "heart")

	// Non-participants cannot react.
	c := env.newUser(t, "carol")
	w = env.do(t, c.ID, http.MethodPost, path, `{"emoji":"heart"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func waitForRoom(t *testing.T, broker *hub.Hub, room string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if broker.RoomSize(room) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no client joined %s", room)
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev hub.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestMessageEventsTargetUserRooms(t *testing.T) {
	env := newTestEnv(t)
	a := env.newUser(t, "alice")
	b := env.newUser(t, "bob")

	server := httptest.NewServer(env.router)
	defer server.Close()

	// Connect as bob; the upgrade auto-joins user:<bob> and nothing else,
	// like a client with no thread open.
	token, err := jwt.GenerateToken(b.ID)
	require.NoError(t, err)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForRoom(t, env.broker, hub.UserRoom(b.ID))

	body := fmt.Sprintf(`{"recipientId":%d,"content":"ping"}`, b.ID)
	w := env.do(t, a.ID, http.MethodPost, "/messages", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var sent MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))

	ev := readEvent(t, conn)
	assert.Equal(t, "new_message", ev.Type)

	// The read receipt must land in the sender's user room too, with the
	// reader identified as readBy.
	w = env.do(t, a.ID, http.MethodPut, fmt.Sprintf("/messages/conversations/%d/read", sent.ConversationID), "")
	require.Equal(t, http.StatusOK, w.Code)

	ev = readEvent(t, conn)
	require.Equal(t, "messages_read", ev.Type)
	payload, ok := ev.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(a.ID), payload["readBy"])
	assert.Equal(t, float64(sent.ConversationID), payload["conversationId"])
}

func TestCommentNotificationRules(t *testing.T) {
	env := newTestEnv(t)
	author := env.newUser(t, "author")
	commenter := env.newUser(t, "commenter")
	replier := env.newUser(t, "replier")
	post := env.newPost(t, author, models.PrivacyPublic)
	path := fmt.Sprintf("/posts/%d/comments", post.ID)

	w := env.do(t, commenter.ID, http.MethodPost, path, `{"content":"first"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(1), env.notificationCount(t, author.ID))

	var parent CommentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parent))

	// A reply notifies both the post author and the parent commenter.
	body := fmt.Sprintf(`{"content":"reply","parentId":%d}`, parent.ID)
	w = env.do(t, replier.ID, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(2), env.notificationCount(t, author.ID))
	assert.Equal(t, int64(1), env.notificationCount(t, commenter.ID))

	// The post author replying to their own thread only notifies the
	// parent commenter, never themselves.
	body = fmt.Sprintf(`{"content":"thanks","parentId":%d}`, parent.ID)
	w = env.do(t, author.ID, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(2), env.notificationCount(t, author.ID))
	assert.Equal(t, int64(2), env.notificationCount(t, commenter.ID))
}
