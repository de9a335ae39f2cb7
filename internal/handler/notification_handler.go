package handler

import (
	"net/http"
	"strconv"

	"shine/backend/internal/auth"
	"shine/backend/internal/database"
	"shine/backend/internal/models"
	"shine/backend/internal/notify"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// NotificationListResponse pages through a user's notifications and carries
// the unread count alongside, so clients can badge without a second call.
type NotificationListResponse struct {
	Data        []notify.Payload `json:"data"`
	Meta        PaginationMeta   `json:"meta"`
	UnreadCount int64            `json:"unreadCount"`
}

// endregion

func notificationPayload(n models.Notification) notify.Payload {
	return notify.Payload{
		ID:      n.ID,
		Type:    n.Type,
		Message: n.Message,
		From: notify.ActorSummary{
			ID:          n.Actor.ID,
			Username:    n.Actor.Username,
			DisplayName: n.Actor.DisplayName,
			AvatarURL:   n.Actor.AvatarURL,
		},
		PostID:    n.PostID,
		CreatedAt: n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Read:      n.Read,
	}
}

// GetNotifications godoc
// @Summary      List notifications
// @Description  Returns the current user's notifications, newest first, with the unread count.
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(20)
// @Success      200 {object} NotificationListResponse
// @Router       /notifications [get]
func GetNotifications(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	page, limit := pageParams(c, 20)

	query := database.DB.Model(&models.Notification{}).
		Preload("Actor").
		Where("user_id = ?", viewerID).
		Order("created_at DESC")

	paginated, err := Paginate[models.Notification](query, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notifications"})
		return
	}

	unread, err := countUnreadNotifications(viewerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notifications"})
		return
	}

	payloads := make([]notify.Payload, 0, len(paginated.Data))
	for _, n := range paginated.Data {
		payloads = append(payloads, notificationPayload(n))
	}

	c.JSON(http.StatusOK, NotificationListResponse{
		Data:        payloads,
		Meta:        paginated.Meta,
		UnreadCount: unread,
	})
}

// MarkNotificationRead godoc
// @Summary      Mark a notification as read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Notification ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Router       /notifications/{id}/read [put]
func MarkNotificationRead(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	result := database.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", uint(notificationID), viewerID).
		Update("read", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllNotificationsRead godoc
// @Summary      Mark all notifications as read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]string
// @Router       /notifications/read-all [put]
func MarkAllNotificationsRead(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	if err := database.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", viewerID, false).
		Update("read", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// DeleteNotification godoc
// @Summary      Delete a notification
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Notification ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Router       /notifications/{id} [delete]
func DeleteNotification(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	result := database.DB.
		Where("id = ? AND user_id = ?", uint(notificationID), viewerID).
		Delete(&models.Notification{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// GetUnreadNotificationCount godoc
// @Summary      Count unread notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]int64
// @Router       /notifications/unread-count [get]
func GetUnreadNotificationCount(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	unread, err := countUnreadNotifications(viewerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": unread})
}

func countUnreadNotifications(userID uint) (int64, error) {
	var count int64
	err := database.DB.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}
