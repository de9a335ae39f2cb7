package handler

import (
	"net/http"
	"strconv"

	"shine/backend/internal/auth"
	"shine/backend/internal/conversation"
	"shine/backend/internal/database"
	"shine/backend/internal/models"
	"shine/backend/internal/notify"
	"shine/backend/internal/visibility"
	"shine/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// FriendResponse is one entry in a friend or pending-request listing.
type FriendResponse struct {
	User        PublicUserResponse      `json:"user"`
	Status      models.FriendshipStatus `json:"status"`
	RequestedBy uint                    `json:"requestedBy"`
}

// endregion

// FriendHandler manages the friendship edge between two users. When
// eagerConversation is set, accepting a request also opens the pair's
// direct-message thread.
type FriendHandler struct {
	dispatcher        *notify.Dispatcher
	eagerConversation bool
}

func NewFriendHandler(dispatcher *notify.Dispatcher, eagerConversation bool) *FriendHandler {
	return &FriendHandler{dispatcher: dispatcher, eagerConversation: eagerConversation}
}

// SendRequest godoc
// @Summary      Send a friend request
// @Description  Creates a pending friendship edge toward another user and notifies them.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Target user ID"
// @Success      201 {object} map[string]string
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /friends/requests/{id} [post]
func (h *FriendHandler) SendRequest(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if viewerID == uint(targetID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send a friend request to yourself"})
		return
	}

	var target models.User
	if err := database.DB.First(&target, uint(targetID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	blocked, err := visibility.IsBlockedEither(database.DB, viewerID, target.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send friend request"})
		return
	}
	if blocked {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot send a friend request to this user"})
		return
	}

	// One edge per unordered pair, whatever its direction or status.
	var existing models.Friendship
	err = database.DB.
		Where("(requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)",
			viewerID, target.ID, target.ID, viewerID).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A friendship or pending request already exists"})
		return
	}

	friendship := models.Friendship{
		RequesterID: viewerID,
		TargetID:    target.ID,
		Status:      models.StatusPending,
	}
	if err := database.DB.Create(&friendship).Error; err != nil {
		// Concurrent duplicate lands on the composite primary key.
		c.JSON(http.StatusConflict, gin.H{"error": "A friendship or pending request already exists"})
		return
	}

	if _, err := h.dispatcher.Dispatch(target.ID, viewerID, models.NotificationFriendRequest,
		"sent you a friend request", nil); err != nil {
		logger.Get().Warn().Err(err).Uint("target", target.ID).Msg("friend request notification failed")
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Friend request sent"})
}

// AcceptRequest godoc
// @Summary      Accept a friend request
// @Description  Accepts a pending request addressed to the current user and notifies the requester.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Requester user ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Router       /friends/requests/{id}/accept [post]
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	requesterID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Only the target of the request may accept it.
	var friendship models.Friendship
	if err := database.DB.
		Where("requester_id = ? AND target_id = ? AND status = ?",
			uint(requesterID), viewerID, models.StatusPending).
		First(&friendship).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friend request not found"})
		return
	}

	if err := database.DB.Model(&friendship).Update("status", models.StatusAccepted).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept friend request"})
		return
	}

	if _, err := h.dispatcher.Dispatch(friendship.RequesterID, viewerID, models.NotificationFriendAccept,
		"accepted your friend request", nil); err != nil {
		logger.Get().Warn().Err(err).Uint("requester", friendship.RequesterID).Msg("friend accept notification failed")
	}

	if h.eagerConversation {
		if _, err := conversation.Resolve(database.DB, viewerID, friendship.RequesterID); err != nil {
			logger.Get().Warn().Err(err).Msg("conversation bootstrap on friend accept failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted"})
}

// RemoveFriend godoc
// @Summary      Remove a friendship or decline a request
// @Description  Deletes the friendship edge with another user, whatever its direction or status.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Other user ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Router       /friends/{id} [delete]
func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	otherID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	result := database.DB.
		Where("(requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)",
			viewerID, uint(otherID), uint(otherID), viewerID).
		Delete(&models.Friendship{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove friendship"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friendship not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Friendship removed"})
}

// ListFriends godoc
// @Summary      List the current user's friends
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} FriendResponse
// @Router       /friends [get]
func (h *FriendHandler) ListFriends(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	friends, err := listFriendships(viewerID, models.StatusAccepted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve friends"})
		return
	}
	c.JSON(http.StatusOK, friends)
}

// ListPending godoc
// @Summary      List pending friend requests
// @Description  Returns the pending requests involving the current user, sent and received.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} FriendResponse
// @Router       /friends/requests [get]
func (h *FriendHandler) ListPending(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	pending, err := listFriendships(viewerID, models.StatusPending)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve friend requests"})
		return
	}
	c.JSON(http.StatusOK, pending)
}

// GetUserFriends godoc
// @Summary      List another user's friends
// @Description  Returns a user's accepted friends. Hidden when a block exists in either direction.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "User ID"
// @Success      200 {array} FriendResponse
// @Failure      404 {object} ErrorResponse
// @Router       /users/{id}/friends [get]
func (h *FriendHandler) GetUserFriends(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if viewerID != uint(targetID) {
		blocked, err := visibility.IsBlockedEither(database.DB, viewerID, uint(targetID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve friends"})
			return
		}
		if blocked {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
	}

	friends, err := listFriendships(uint(targetID), models.StatusAccepted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve friends"})
		return
	}
	c.JSON(http.StatusOK, friends)
}

// listFriendships loads the edges touching userID with the given status and
// maps each to the user on the other end.
func listFriendships(userID uint, status models.FriendshipStatus) ([]FriendResponse, error) {
	var friendships []models.Friendship
	err := database.DB.
		Preload("Requester").
		Preload("Target").
		Where("(requester_id = ? OR target_id = ?) AND status = ?", userID, userID, status).
		Order("updated_at DESC").
		Find(&friendships).Error
	if err != nil {
		return nil, err
	}

	responses := make([]FriendResponse, 0, len(friendships))
	for _, f := range friendships {
		other := f.Target
		if f.TargetID == userID {
			other = f.Requester
		}
		responses = append(responses, FriendResponse{
			User:        buildPublicUserResponse(other),
			Status:      f.Status,
			RequestedBy: f.RequesterID,
		})
	}
	return responses, nil
}
