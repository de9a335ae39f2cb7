package visibility

import (
	"fmt"
	"strings"
	"testing"

	"shine/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	))
	return db
}

func newUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func newPost(t *testing.T, db *gorm.DB, author models.User, privacy models.PostPrivacy) models.Post {
	t.Helper()
	p := models.Post{AuthorID: author.ID, Content: "post by " + author.Username, Privacy: privacy}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func befriend(t *testing.T, db *gorm.DB, a, b models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Friendship{
		RequesterID: a.ID, TargetID: b.ID, Status: models.StatusAccepted,
	}).Error)
}

func visibleIDs(t *testing.T, db *gorm.DB, viewerID *uint) []uint {
	t.Helper()
	var ids []uint
	require.NoError(t, db.Model(&models.Post{}).Scopes(VisibleTo(viewerID)).Pluck("posts.id", &ids).Error)
	return ids
}

func TestAnonymousSeesPublicOnly(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	public := newPost(t, db, author, models.PrivacyPublic)
	newPost(t, db, author, models.PrivacyFriends)
	newPost(t, db, author, models.PrivacyPrivate)

	ids := visibleIDs(t, db, nil)
	assert.Equal(t, []uint{public.ID}, ids)
}

func TestOwnerSeesAllOwnPosts(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	newPost(t, db, author, models.PrivacyPublic)
	newPost(t, db, author, models.PrivacyFriends)
	newPost(t, db, author, models.PrivacyPrivate)

	ids := visibleIDs(t, db, &author.ID)
	assert.Len(t, ids, 3)
}

func TestFriendSeesFriendsPostsEitherDirection(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	viewer := newUser(t, db, "viewer")
	stranger := newUser(t, db, "stranger")

	friendsPost := newPost(t, db, author, models.PrivacyFriends)
	privatePost := newPost(t, db, author, models.PrivacyPrivate)

	// The edge direction must not matter: viewer is the target here.
	befriend(t, db, author, viewer)

	ids := visibleIDs(t, db, &viewer.ID)
	assert.Contains(t, ids, friendsPost.ID)
	assert.NotContains(t, ids, privatePost.ID)

	assert.NotContains(t, visibleIDs(t, db, &stranger.ID), friendsPost.ID)
}

func TestPendingFriendshipGrantsNothing(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	viewer := newUser(t, db, "viewer")
	friendsPost := newPost(t, db, author, models.PrivacyFriends)

	require.NoError(t, db.Create(&models.Friendship{
		RequesterID: viewer.ID, TargetID: author.ID, Status: models.StatusPending,
	}).Error)

	assert.NotContains(t, visibleIDs(t, db, &viewer.ID), friendsPost.ID)
}

func TestBlockOverridesEverything(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	viewer := newUser(t, db, "viewer")
	befriend(t, db, author, viewer)

	public := newPost(t, db, author, models.PrivacyPublic)
	friendsPost := newPost(t, db, author, models.PrivacyFriends)

	// Visible before the block.
	ids := visibleIDs(t, db, &viewer.ID)
	require.Contains(t, ids, public.ID)
	require.Contains(t, ids, friendsPost.ID)

	// The author blocks the viewer; everything vanishes in both directions.
	require.NoError(t, db.Create(&models.BlockedUser{BlockerID: author.ID, BlockedID: viewer.ID}).Error)

	assert.Empty(t, visibleIDs(t, db, &viewer.ID))

	viewerPost := newPost(t, db, viewer, models.PrivacyPublic)
	assert.NotContains(t, visibleIDs(t, db, &author.ID), viewerPost.ID)
}

func TestIsVisibleRuleOrder(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	viewer := newUser(t, db, "viewer")
	public := newPost(t, db, author, models.PrivacyPublic)

	ok, err := IsVisible(db, &viewer.ID, &public)
	require.NoError(t, err)
	assert.True(t, ok)

	// Block beats public.
	require.NoError(t, db.Create(&models.BlockedUser{BlockerID: viewer.ID, BlockedID: author.ID}).Error)
	ok, err = IsVisible(db, &viewer.ID, &public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindVisiblePostMergesMissingAndHidden(t *testing.T) {
	db := newTestDB(t)
	author := newUser(t, db, "author")
	viewer := newUser(t, db, "viewer")
	private := newPost(t, db, author, models.PrivacyPrivate)

	_, err := FindVisiblePost(db, &viewer.ID, private.ID)
	assert.ErrorIs(t, err, ErrNotVisible)

	_, err = FindVisiblePost(db, &viewer.ID, private.ID+1000)
	assert.ErrorIs(t, err, ErrNotVisible)
}

func TestDiscoveryExcludesSelfAndFriends(t *testing.T) {
	db := newTestDB(t)
	viewer := newUser(t, db, "viewer")
	friend := newUser(t, db, "friend")
	stranger := newUser(t, db, "stranger")
	befriend(t, db, viewer, friend)

	newPost(t, db, viewer, models.PrivacyPublic)
	newPost(t, db, friend, models.PrivacyPublic)
	strangerPost := newPost(t, db, stranger, models.PrivacyPublic)
	newPost(t, db, stranger, models.PrivacyFriends)

	var ids []uint
	require.NoError(t, db.Model(&models.Post{}).Scopes(DiscoveryContent(viewer.ID)).Pluck("posts.id", &ids).Error)
	assert.Equal(t, []uint{strangerPost.ID}, ids)
}

func TestFriendContentIncludesOwnAndFriendPosts(t *testing.T) {
	db := newTestDB(t)
	viewer := newUser(t, db, "viewer")
	friend := newUser(t, db, "friend")
	stranger := newUser(t, db, "stranger")
	befriend(t, db, viewer, friend)

	own := newPost(t, db, viewer, models.PrivacyPrivate)
	friendPublic := newPost(t, db, friend, models.PrivacyPublic)
	friendOnly := newPost(t, db, friend, models.PrivacyFriends)
	friendPrivate := newPost(t, db, friend, models.PrivacyPrivate)
	newPost(t, db, stranger, models.PrivacyPublic)

	var ids []uint
	require.NoError(t, db.Model(&models.Post{}).Scopes(FriendContent(viewer.ID)).Pluck("posts.id", &ids).Error)
	assert.ElementsMatch(t, []uint{own.ID, friendPublic.ID, friendOnly.ID}, ids)
	assert.NotContains(t, ids, friendPrivate.ID)
}
