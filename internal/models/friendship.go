package models

import "time"

// FriendshipStatus defines the state of a relationship between two users.
type FriendshipStatus string

const (
	// StatusPending means a friend request has been sent but not yet accepted.
	StatusPending FriendshipStatus = "pending"

	// StatusAccepted means the friend request was accepted, and the users are now friends.
	StatusAccepted FriendshipStatus = "accepted"
)

// Friendship represents the relationship between two users as a directed
// edge. An accepted edge in either direction means the pair are friends.
// At most one edge may exist per unordered pair; both directions are
// checked before a new request is created.
type Friendship struct {
	RequesterID uint             `gorm:"primaryKey"`
	TargetID    uint             `gorm:"primaryKey"`
	Status      FriendshipStatus `gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Requester User `gorm:"foreignKey:RequesterID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Target    User `gorm:"foreignKey:TargetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
