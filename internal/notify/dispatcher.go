package notify

import (
	"shine/backend/internal/hub"
	"shine/backend/internal/models"
	"shine/backend/pkg/logger"

	"gorm.io/gorm"
)

// Dispatcher persists notifications and pushes them to the recipient's
// live channel. It is handed its dependencies explicitly; nothing here is
// looked up through a global.
type Dispatcher struct {
	db  *gorm.DB
	hub *hub.Hub
}

func NewDispatcher(db *gorm.DB, h *hub.Hub) *Dispatcher {
	return &Dispatcher{db: db, hub: h}
}

// ActorSummary is the public slice of the acting user embedded in the
// pushed payload so the client renders without a follow-up fetch.
type ActorSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Payload is the live notification event body.
type Payload struct {
	ID        uint                    `json:"id"`
	Type      models.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	From      ActorSummary            `json:"from"`
	PostID    *uint                   `json:"postId,omitempty"`
	CreatedAt string                  `json:"createdAt"`
	Read      bool                    `json:"read"`
}

// Dispatch creates a notification row for recipientID and multicasts it to
// the recipient's user room. Self-notifications are a hard no-op: no row,
// no push. A failed push never unwinds the persisted row; the notification
// stays discoverable through the listing read path.
func (d *Dispatcher) Dispatch(recipientID, actorID uint, notifType models.NotificationType, message string, postID *uint) (*models.Notification, error) {
	if recipientID == actorID {
		return nil, nil
	}

	notification := models.Notification{
		UserID:  recipientID,
		ActorID: actorID,
		Type:    notifType,
		Message: message,
		PostID:  postID,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		return nil, err
	}

	var actor models.User
	if err := d.db.First(&actor, actorID).Error; err != nil {
		// Persistence already succeeded; skip the push rather than fail.
		logger.Get().Warn().Err(err).Uint("actor", actorID).Msg("notification push skipped: actor lookup failed")
		return &notification, nil
	}

	d.hub.Broadcast(hub.UserRoom(recipientID), hub.Event{
		Type: "notification",
		Payload: Payload{
			ID:      notification.ID,
			Type:    notification.Type,
			Message: notification.Message,
			From: ActorSummary{
				ID:          actor.ID,
				Username:    actor.Username,
				DisplayName: actor.DisplayName,
				AvatarURL:   actor.AvatarURL,
			},
			PostID:    notification.PostID,
			CreatedAt: notification.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			Read:      false,
		},
	})

	return &notification, nil
}
