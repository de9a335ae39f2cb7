package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation is a direct-message thread between exactly two users.
// UserLowID/UserHighID hold the participant pair in canonical (sorted)
// order; the composite unique index guarantees at most one conversation
// per unordered pair even under concurrent creation.
type Conversation struct {
	gorm.Model
	UserLowID     uint      `gorm:"not null;uniqueIndex:idx_conversations_pair"`
	UserHighID    uint      `gorm:"not null;uniqueIndex:idx_conversations_pair"`
	LastMessageAt time.Time `gorm:"not null;index"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

// ConversationParticipant is a membership row; conversation operations are
// gated on its existence.
type ConversationParticipant struct {
	gorm.Model
	ConversationID uint `gorm:"not null;uniqueIndex:idx_participants_pair"`
	UserID         uint `gorm:"not null;uniqueIndex:idx_participants_pair;index"`

	User User `gorm:"foreignKey:UserID"`
}

// Message belongs to one conversation. Content and ReplyToContent are
// stored encrypted; Reactions maps an emoji to the list of reacting user
// ids.
type Message struct {
	gorm.Model
	ConversationID uint   `gorm:"not null;index"`
	SenderID       uint   `gorm:"not null"`
	Content        string // encrypted at rest
	ImageURL       string `gorm:"size:512"`
	ReplyToID      *uint
	ReplyToContent string         // encrypted at rest
	Read           bool           `gorm:"not null;default:false"`
	Reactions      datatypes.JSON `gorm:"type:json"`

	Sender User `gorm:"foreignKey:SenderID"`
}
