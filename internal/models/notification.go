package models

import "gorm.io/gorm"

type NotificationType string

const (
	NotificationLike          NotificationType = "like"
	NotificationComment       NotificationType = "comment"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
)

// Notification belongs to one recipient and references the acting user and
// optionally a post. Immutable once created except for the Read flag.
type Notification struct {
	gorm.Model
	UserID  uint             `gorm:"not null;index"` // recipient
	ActorID uint             `gorm:"not null"`
	Type    NotificationType `gorm:"type:varchar(30);not null"`
	Message string           `gorm:"size:255;not null"`
	PostID  *uint
	Read    bool `gorm:"not null;default:false"`

	Actor User  `gorm:"foreignKey:ActorID"`
	Post  *Post `gorm:"foreignKey:PostID"`
}
