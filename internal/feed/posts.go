package feed

import (
	"shine/backend/internal/models"
	"shine/backend/internal/visibility"

	"gorm.io/gorm"
)

// LoadItem fetches one post through the visibility predicate, with counts
// and author summary computed in the same query. Returns (nil, nil) when
// the post is missing or hidden; callers surface both as not found.
func LoadItem(db *gorm.DB, viewerID *uint, postID uint) (*Item, error) {
	var rows []row
	err := db.Model(&models.Post{}).
		Select(selectColumns).
		Joins("JOIN users ON users.id = posts.author_id").
		Scopes(visibility.VisibleTo(viewerID)).
		Where("posts.id = ?", postID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	items := mapRows(rows, "")
	return &items[0], nil
}

// LoadUserPosts lists one user's posts through the visibility predicate,
// newest first, with standard offset pagination.
func LoadUserPosts(db *gorm.DB, viewerID *uint, authorID uint, page, pageSize int) ([]Item, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	var rows []row
	err := db.Model(&models.Post{}).
		Select(selectColumns).
		Joins("JOIN users ON users.id = posts.author_id").
		Scopes(visibility.VisibleTo(viewerID)).
		Where("posts.author_id = ?", authorID).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return mapRows(rows, ""), nil
}
