package conversation

import (
	"errors"
	"time"

	"shine/backend/internal/models"

	"gorm.io/gorm"
)

// Resolve returns the 1:1 conversation between a and b, creating it if
// none exists. The participant pair is stored in canonical (low, high)
// order under a unique index, so two concurrent resolves cannot produce a
// duplicate: the loser of the race gets ErrDuplicatedKey and re-fetches.
func Resolve(db *gorm.DB, a, b uint) (*models.Conversation, error) {
	if a == b {
		return nil, errors.New("conversation requires two distinct participants")
	}

	low, high := a, b
	if low > high {
		low, high = high, low
	}

	conv, err := findByPair(db, low, high)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := models.Conversation{
		UserLowID:     low,
		UserHighID:    high,
		LastMessageAt: time.Now(),
		Participants: []models.ConversationParticipant{
			{UserID: a},
			{UserID: b},
		},
	}
	if err := db.Create(&created).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a concurrent resolve; the winner's row is authoritative.
			return findByPair(db, low, high)
		}
		return nil, err
	}
	return &created, nil
}

func findByPair(db *gorm.DB, low, high uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Preload("Participants").
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// IsParticipant reports whether userID is a member of the conversation.
// Every conversation operation is gated on this check.
func IsParticipant(db *gorm.DB, conversationID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

// OtherParticipantIDs returns the member ids of a conversation excluding
// the given user, used to target per-user pushes.
func OtherParticipantIDs(db *gorm.DB, conversationID, userID uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		Pluck("user_id", &ids).Error
	return ids, err
}
