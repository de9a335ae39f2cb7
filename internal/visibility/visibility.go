package visibility

import (
	"errors"

	"shine/backend/internal/models"

	"gorm.io/gorm"
)

// Query scopes gating which posts a viewer may see. The predicates are
// expressed as WHERE clauses so they compose into the same query that
// applies pagination; fetching then discarding hidden rows would break
// page-size guarantees.

// NotBlockedEither excludes posts whose author has a block edge with the
// viewer in either direction. A block overrides every other rule.
func NotBlockedEither(viewerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"NOT EXISTS (SELECT 1 FROM blocked_users WHERE blocked_users.deleted_at IS NULL AND ((blocker_id = ? AND blocked_id = posts.author_id) OR (blocker_id = posts.author_id AND blocked_id = ?)))",
			viewerID, viewerID,
		)
	}
}

// VisibleTo applies the full visibility predicate for a viewer. A nil
// viewer is anonymous and sees public posts only.
func VisibleTo(viewerID *uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewerID == nil {
			return db.Where("posts.privacy = ?", models.PrivacyPublic)
		}
		return db.
			Scopes(NotBlockedEither(*viewerID)).
			Where(
				"(posts.privacy = ? OR posts.author_id = ? OR (posts.privacy = ? AND "+acceptedFriendshipSQL+"))",
				models.PrivacyPublic, *viewerID, models.PrivacyFriends, *viewerID, *viewerID,
			)
	}
}

// acceptedFriendshipSQL matches an accepted friendship between the viewer
// and the post author in either direction. Expects two viewerID args.
const acceptedFriendshipSQL = "EXISTS (SELECT 1 FROM friendships WHERE ((requester_id = ? AND target_id = posts.author_id) OR (requester_id = posts.author_id AND target_id = ?)) AND status = 'accepted')"

// FriendContent matches the friend stream of the feed: the viewer's own
// posts plus accepted friends' posts with privacy public or friends,
// excluding blocked relationships.
func FriendContent(viewerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Scopes(NotBlockedEither(viewerID)).
			Where(
				"(posts.author_id = ? OR ("+acceptedFriendshipSQL+" AND posts.privacy IN ?))",
				viewerID, viewerID, viewerID,
				[]models.PostPrivacy{models.PrivacyPublic, models.PrivacyFriends},
			)
	}
}

// DiscoveryContent matches the discovery stream: public posts by
// non-friends other than the viewer, excluding blocked relationships.
func DiscoveryContent(viewerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Scopes(NotBlockedEither(viewerID)).
			Where("posts.privacy = ?", models.PrivacyPublic).
			Where("posts.author_id <> ?", viewerID).
			Where("NOT "+acceptedFriendshipSQL, viewerID, viewerID)
	}
}

// AreFriends reports whether an accepted friendship exists between a and b
// in either direction.
func AreFriends(db *gorm.DB, a, b uint) (bool, error) {
	var count int64
	err := db.Model(&models.Friendship{}).
		Where("((requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)) AND status = ?",
			a, b, b, a, models.StatusAccepted).
		Count(&count).Error
	return count > 0, err
}

// IsBlockedEither reports whether a block edge exists between a and b in
// either direction.
func IsBlockedEither(db *gorm.DB, a, b uint) (bool, error) {
	var count int64
	err := db.Model(&models.BlockedUser{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// IsVisible is the point form of the predicate, evaluated in rule order:
// block (either direction) hides everything; then public, own, and
// friends-only-with-accepted-friendship are visible; anything else is not.
func IsVisible(db *gorm.DB, viewerID *uint, post *models.Post) (bool, error) {
	if viewerID != nil {
		blocked, err := IsBlockedEither(db, *viewerID, post.AuthorID)
		if err != nil {
			return false, err
		}
		if blocked {
			return false, nil
		}
	}

	if post.Privacy == models.PrivacyPublic {
		return true, nil
	}
	if viewerID == nil {
		return false, nil
	}
	if *viewerID == post.AuthorID {
		return true, nil
	}
	if post.Privacy == models.PrivacyFriends {
		return AreFriends(db, *viewerID, post.AuthorID)
	}
	return false, nil
}

// ErrNotVisible is returned by FindVisiblePost for both missing and hidden
// posts so callers cannot distinguish the two.
var ErrNotVisible = errors.New("post not found")

// FindVisiblePost loads a post through the visibility predicate. Absence
// and invisibility are indistinguishable to the caller.
func FindVisiblePost(db *gorm.DB, viewerID *uint, postID uint) (*models.Post, error) {
	var post models.Post
	err := db.Model(&models.Post{}).
		Scopes(VisibleTo(viewerID)).
		Preload("Author").
		First(&post, postID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotVisible
		}
		return nil, err
	}
	return &post, nil
}
