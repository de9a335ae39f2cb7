package notify

import (
	"fmt"
	"strings"
	"testing"

	"shine/backend/internal/hub"
	"shine/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Notification{}))

	h := hub.NewHub(nil)
	t.Cleanup(h.Stop)
	return NewDispatcher(db, h), db
}

func newUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func TestDispatchPersistsNotification(t *testing.T) {
	d, db := newTestDispatcher(t)
	actor := newUser(t, db, "actor")
	recipient := newUser(t, db, "recipient")

	postID := uint(42)
	n, err := d.Dispatch(recipient.ID, actor.ID, models.NotificationLike, "reacted with like to your post", &postID)
	require.NoError(t, err)
	require.NotNil(t, n)

	var stored models.Notification
	require.NoError(t, db.First(&stored, n.ID).Error)
	assert.Equal(t, recipient.ID, stored.UserID)
	assert.Equal(t, actor.ID, stored.ActorID)
	assert.Equal(t, models.NotificationLike, stored.Type)
	assert.Equal(t, &postID, stored.PostID)
	assert.False(t, stored.Read)
}

func TestDispatchSelfIsNoOp(t *testing.T) {
	d, db := newTestDispatcher(t)
	user := newUser(t, db, "solo")

	n, err := d.Dispatch(user.ID, user.ID, models.NotificationComment, "commented on your post", nil)
	require.NoError(t, err)
	assert.Nil(t, n)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDispatchSurvivesMissingActor(t *testing.T) {
	d, db := newTestDispatcher(t)
	recipient := newUser(t, db, "recipient")

	// Actor row is gone; the notification still persists and no push error
	// surfaces to the caller.
	n, err := d.Dispatch(recipient.ID, 9999, models.NotificationFriendRequest, "sent you a friend request", nil)
	require.NoError(t, err)
	require.NotNil(t, n)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
