package handler

import (
	"errors"
	"net/http"
	"strconv"

	"shine/backend/internal/auth"
	"shine/backend/internal/database"
	"shine/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

// UpdatePrivacyInput defines the structure for toggling profile privacy.
type UpdatePrivacyInput struct {
	IsPrivate *bool `json:"isPrivate" binding:"required"`
}

// BlockStatusResponse reports the block relationship with another user,
// split by direction.
type BlockStatusResponse struct {
	BlockedByMe bool `json:"blockedByMe"`
	BlockedMe   bool `json:"blockedMe"`
}

// endregion

// BlockUser godoc
// @Summary      Block a user
// @Description  Blocks another user and removes any friendship or pending request between the pair.
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "User ID to block"
// @Success      201 {object} map[string]string
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /blocks/{id} [post]
func BlockUser(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if viewerID == uint(targetID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	var target models.User
	if err := database.DB.First(&target, uint(targetID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		block := models.BlockedUser{BlockerID: viewerID, BlockedID: target.ID}
		if err := tx.Create(&block).Error; err != nil {
			return err
		}
		// Blocking severs the friendship edge whichever way it points.
		return tx.Where("(requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?)",
			viewerID, target.ID, target.ID, viewerID).
			Delete(&models.Friendship{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "User is already blocked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User blocked"})
}

// UnblockUser godoc
// @Summary      Unblock a user
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "User ID to unblock"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Router       /blocks/{id} [delete]
func UnblockUser(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Hard delete so the pair's unique index stays free for a later re-block.
	result := database.DB.Unscoped().
		Where("blocker_id = ? AND blocked_id = ?", viewerID, uint(targetID)).
		Delete(&models.BlockedUser{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock user"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Block not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}

// ListBlocked godoc
// @Summary      List blocked users
// @Description  Returns the users the current user has blocked, most recent first.
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} PublicUserResponse
// @Router       /blocks [get]
func ListBlocked(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var blocks []models.BlockedUser
	if err := database.DB.Preload("Blocked").
		Where("blocker_id = ?", viewerID).
		Order("created_at DESC").
		Find(&blocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve blocked users"})
		return
	}

	users := make([]PublicUserResponse, 0, len(blocks))
	for _, block := range blocks {
		users = append(users, buildPublicUserResponse(block.Blocked))
	}

	c.JSON(http.StatusOK, users)
}

// BlockStatus godoc
// @Summary      Check block status with a user
// @Description  Reports whether the current user blocked the other user and vice versa.
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "User ID"
// @Success      200 {object} BlockStatusResponse
// @Router       /blocks/{id}/status [get]
func BlockStatus(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var byMe, me int64
	if err := database.DB.Model(&models.BlockedUser{}).
		Where("blocker_id = ? AND blocked_id = ?", viewerID, uint(targetID)).
		Count(&byMe).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check block status"})
		return
	}
	if err := database.DB.Model(&models.BlockedUser{}).
		Where("blocker_id = ? AND blocked_id = ?", uint(targetID), viewerID).
		Count(&me).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check block status"})
		return
	}

	c.JSON(http.StatusOK, BlockStatusResponse{BlockedByMe: byMe > 0, BlockedMe: me > 0})
}

// UpdatePrivacy godoc
// @Summary      Update profile privacy
// @Description  Toggles whether the current user's profile is private.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body UpdatePrivacyInput true "Privacy flag"
// @Success      200 {object} map[string]bool
// @Failure      400 {object} ErrorResponse
// @Router       /users/me/privacy [put]
func UpdatePrivacy(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var input UpdatePrivacyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := database.DB.Model(&models.User{}).
		Where("id = ?", viewerID).
		Update("is_private", *input.IsPrivate).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update privacy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"isPrivate": *input.IsPrivate})
}
