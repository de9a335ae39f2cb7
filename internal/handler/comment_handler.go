package handler

import (
	"net/http"
	"strconv"
	"time"

	"shine/backend/internal/auth"
	"shine/backend/internal/database"
	"shine/backend/internal/feed"
	"shine/backend/internal/hub"
	"shine/backend/internal/models"
	"shine/backend/internal/notify"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// CommentInput defines the structure for adding a comment. ParentID marks
// a reply to another comment on the same post.
type CommentInput struct {
	Content    string `json:"content"`
	ParentID   *uint  `json:"parentId"`
	AudioURL   string `json:"audioUrl"`
	StickerURL string `json:"stickerUrl"`
}

// UpdateCommentInput defines the structure for editing a comment.
type UpdateCommentInput struct {
	Content string `json:"content" binding:"required"`
}

// CommentResponse is the hydrated comment shape pushed to post rooms and
// returned over HTTP.
type CommentResponse struct {
	ID         uint               `json:"id"`
	PostID     uint               `json:"postId"`
	ParentID   *uint              `json:"parentId,omitempty"`
	Content    string             `json:"content"`
	AudioURL   string             `json:"audioUrl,omitempty"`
	StickerURL string             `json:"stickerUrl,omitempty"`
	User       feed.AuthorSummary `json:"user"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func newCommentResponse(comment models.Comment) CommentResponse {
	return CommentResponse{
		ID:         comment.ID,
		PostID:     comment.PostID,
		ParentID:   comment.ParentID,
		Content:    comment.Content,
		AudioURL:   comment.AudioURL,
		StickerURL: comment.StickerURL,
		User: feed.AuthorSummary{
			ID:          comment.User.ID,
			Username:    comment.User.Username,
			DisplayName: comment.User.DisplayName,
			AvatarURL:   comment.User.AvatarURL,
		},
		CreatedAt: comment.CreatedAt,
	}
}

// endregion

// CommentHandler serves comment reads and writes and multicasts comment
// changes to everyone currently viewing the post.
type CommentHandler struct {
	hub        *hub.Hub
	dispatcher *notify.Dispatcher
}

func NewCommentHandler(h *hub.Hub, dispatcher *notify.Dispatcher) *CommentHandler {
	return &CommentHandler{hub: h, dispatcher: dispatcher}
}

// AddComment godoc
// @Summary      Comment on a post
// @Description  Adds a comment, pushes it to the post's room, and notifies the post author (and the parent commenter on replies).
// @Tags         comments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Post ID"
// @Param        input body CommentInput true "Comment"
// @Success      201 {object} CommentResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /posts/{id}/comments [post]
func (h *CommentHandler) AddComment(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	postID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	var input CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Content == "" && input.AudioURL == "" && input.StickerURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment content is required"})
		return
	}

	item, err := feed.LoadItem(database.DB, &viewerID, uint(postID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	comment := models.Comment{
		PostID:     item.ID,
		UserID:     viewerID,
		ParentID:   input.ParentID,
		Content:    input.Content,
		AudioURL:   input.AudioURL,
		StickerURL: input.StickerURL,
	}
	if err := database.DB.Create(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add comment"})
		return
	}
	if err := database.DB.Preload("User").First(&comment, comment.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load comment"})
		return
	}

	response := newCommentResponse(comment)

	// Everyone with the post open gets the comment immediately.
	h.hub.Broadcast(hub.PostRoom(item.ID), hub.Event{Type: "new_comment", Payload: response})

	postIDRef := item.ID
	h.dispatcher.Dispatch(item.Author.ID, viewerID, models.NotificationComment,
		"commented on your post", &postIDRef)

	// A reply also notifies the parent commenter, unless they are the
	// actor or already notified as the post author.
	if input.ParentID != nil {
		var parent models.Comment
		if err := database.DB.First(&parent, *input.ParentID).Error; err == nil {
			if parent.UserID != viewerID && parent.UserID != item.Author.ID {
				h.dispatcher.Dispatch(parent.UserID, viewerID, models.NotificationComment,
					"replied to your comment", &postIDRef)
			}
		}
	}

	c.JSON(http.StatusCreated, response)
}

// GetComments godoc
// @Summary      List comments on a post
// @Description  Returns a post's comments in chronological order, gated by the post's visibility.
// @Tags         comments
// @Produce      json
// @Param        id path int true "Post ID"
// @Success      200 {array} CommentResponse
// @Failure      404 {object} ErrorResponse
// @Router       /posts/{id}/comments [get]
func (h *CommentHandler) GetComments(c *gin.Context) {
	viewerID := auth.ViewerID(c)
	postID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	item, err := feed.LoadItem(database.DB, viewerID, uint(postID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	var comments []models.Comment
	if err := database.DB.Preload("User").
		Where("post_id = ?", item.ID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	responses := make([]CommentResponse, 0, len(comments))
	for _, comment := range comments {
		responses = append(responses, newCommentResponse(comment))
	}

	c.JSON(http.StatusOK, responses)
}

// UpdateComment godoc
// @Summary      Edit a comment
// @Description  Updates a comment's content. Only the author may edit; the change is pushed to the post's room.
// @Tags         comments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Comment ID"
// @Param        input body UpdateCommentInput true "New content"
// @Success      200 {object} CommentResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /comments/{id} [put]
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment ID"})
		return
	}

	var input UpdateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var comment models.Comment
	if err := database.DB.Preload("User").First(&comment, uint(commentID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if comment.UserID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to edit this comment"})
		return
	}

	if err := database.DB.Model(&comment).Update("content", input.Content).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}
	comment.Content = input.Content

	response := newCommentResponse(comment)
	h.hub.Broadcast(hub.PostRoom(comment.PostID), hub.Event{Type: "comment_updated", Payload: response})

	c.JSON(http.StatusOK, response)
}

// DeleteComment godoc
// @Summary      Delete a comment
// @Description  Removes a comment. The comment author or the post author may delete; the removal is pushed to the post's room.
// @Tags         comments
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Comment ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /comments/{id} [delete]
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment ID"})
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, uint(commentID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	var post models.Post
	if err := database.DB.First(&post, comment.PostID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if comment.UserID != viewerID && post.AuthorID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to delete this comment"})
		return
	}

	if err := database.DB.Delete(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	h.hub.Broadcast(hub.PostRoom(comment.PostID), hub.Event{
		Type:    "comment_deleted",
		Payload: gin.H{"commentId": comment.ID, "postId": comment.PostID},
	})

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}
