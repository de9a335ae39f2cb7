package feed

import (
	"math"
	"sort"
	"time"

	"shine/backend/internal/models"
	"shine/backend/internal/visibility"

	"gorm.io/gorm"
)

// Source labels which stream a feed item came from, for client display.
const (
	SourceFriend    = "friend"
	SourceSuggested = "suggested"
)

// friendShare is the fraction of a page reserved for the friend stream;
// the remainder goes to discovery.
const friendShare = 0.7

// AuthorSummary is the public author slice embedded in each item.
type AuthorSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Counts carries the derived like/comment counts, computed in the same
// query that fetched the post.
type Counts struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// Item is one composed feed entry.
type Item struct {
	ID        uint               `json:"id"`
	Content   string             `json:"content"`
	ImageURL  string             `json:"imageUrl,omitempty"`
	Privacy   models.PostPrivacy `json:"privacy"`
	Author    AuthorSummary      `json:"author"`
	Counts    Counts             `json:"counts"`
	FeedType  string             `json:"feedType,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// row is the flat scan target for the feed queries; mapping from row to
// Item happens once per query, never at the call site.
type row struct {
	ID           uint
	CreatedAt    time.Time
	Content      string
	ImageURL     string
	Privacy      models.PostPrivacy
	AuthorID     uint
	Username     string
	DisplayName  string
	AvatarURL    string
	LikeCount    int64
	CommentCount int64
}

const selectColumns = `posts.id, posts.created_at, posts.content, posts.image_url, posts.privacy, posts.author_id,
	users.username, users.display_name, users.avatar_url,
	(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id AND likes.deleted_at IS NULL) AS like_count,
	(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.deleted_at IS NULL) AS comment_count`

// Compose builds one feed page for the viewer. Anonymous viewers get a
// single public stream. Authenticated viewers get a page split between the
// friend stream (ceil(pageSize*0.7)) and the discovery stream (the rest),
// each paginated with its own offset, concatenated and re-sorted by
// creation time descending. A post can never satisfy both streams, so a
// page holds no duplicate ids.
func Compose(db *gorm.DB, viewerID *uint, page, pageSize int) ([]Item, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	if viewerID == nil {
		rows, err := runStream(db, visibility.VisibleTo(nil), pageSize, (page-1)*pageSize)
		if err != nil {
			return nil, err
		}
		return mapRows(rows, SourceSuggested), nil
	}

	friendLimit := int(math.Ceil(float64(pageSize) * friendShare))
	suggestedLimit := pageSize - friendLimit

	friendRows, err := runStream(db, visibility.FriendContent(*viewerID), friendLimit, (page-1)*friendLimit)
	if err != nil {
		return nil, err
	}

	var suggestedRows []row
	if suggestedLimit > 0 {
		suggestedRows, err = runStream(db, visibility.DiscoveryContent(*viewerID), suggestedLimit, (page-1)*suggestedLimit)
		if err != nil {
			return nil, err
		}
	}

	items := append(mapRows(friendRows, SourceFriend), mapRows(suggestedRows, SourceSuggested)...)

	// Stable merge by recency; ties break on id so pages are deterministic.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

func runStream(db *gorm.DB, scope func(*gorm.DB) *gorm.DB, limit, offset int) ([]row, error) {
	var rows []row
	err := db.Model(&models.Post{}).
		Select(selectColumns).
		Joins("JOIN users ON users.id = posts.author_id").
		Scopes(scope).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}

func mapRows(rows []row, feedType string) []Item {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{
			ID:       r.ID,
			Content:  r.Content,
			ImageURL: r.ImageURL,
			Privacy:  r.Privacy,
			Author: AuthorSummary{
				ID:          r.AuthorID,
				Username:    r.Username,
				DisplayName: r.DisplayName,
				AvatarURL:   r.AvatarURL,
			},
			Counts:    Counts{Likes: r.LikeCount, Comments: r.CommentCount},
			FeedType:  feedType,
			CreatedAt: r.CreatedAt,
		})
	}
	return items
}
