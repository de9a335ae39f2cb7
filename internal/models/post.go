package models

import "gorm.io/gorm"

type PostPrivacy string

const (
	PrivacyPublic  PostPrivacy = "public"
	PrivacyFriends PostPrivacy = "friends"
	PrivacyPrivate PostPrivacy = "private"
)

// Post represents a piece of content owned by one user. Like and comment
// counts are always computed from their tables, never stored on the row.
type Post struct {
	gorm.Model
	AuthorID uint        `gorm:"not null;index"`
	Content  string      `gorm:"not null"`
	ImageURL string      `gorm:"size:512"`
	Privacy  PostPrivacy `gorm:"type:varchar(20);not null;default:'public'"`

	Author User `gorm:"foreignKey:AuthorID"`
}

// Like is a single reaction on a post. A user has at most one reaction per
// post; clicking the same reaction again removes it.
type Like struct {
	gorm.Model
	PostID uint   `gorm:"not null;uniqueIndex:idx_likes_post_user"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_likes_post_user"`
	Type   string `gorm:"size:50;not null;default:'like'"`

	User User `gorm:"foreignKey:UserID"`
}

// Comment belongs to a post. ParentID is set when the comment replies to
// another comment on the same post.
type Comment struct {
	gorm.Model
	PostID     uint  `gorm:"not null;index"`
	UserID     uint  `gorm:"not null"`
	ParentID   *uint `gorm:"index"`
	Content    string
	AudioURL   string `gorm:"size:512"`
	StickerURL string `gorm:"size:512"`

	User User `gorm:"foreignKey:UserID"`
}
