package handler

import (
	"errors"
	"net/http"
	"strconv"

	"shine/backend/internal/auth"
	"shine/backend/internal/database"
	"shine/backend/internal/feed"
	"shine/backend/internal/models"
	"shine/backend/internal/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

// PostInput defines the structure for creating a post. ImageURL is an
// opaque URL issued by the external object store; the backend never
// inspects file bytes.
type PostInput struct {
	Content  string             `json:"content" binding:"required"`
	Privacy  models.PostPrivacy `json:"privacy" example:"public"`
	ImageURL string             `json:"imageUrl"`
}

// UpdatePostInput defines the structure for editing a post.
type UpdatePostInput struct {
	Content string `json:"content" binding:"required"`
}

// LikeInput defines the structure for reacting to a post.
type LikeInput struct {
	Type string `json:"type" example:"like"`
}

// endregion

// PostHandler serves post reads and writes. The notification dispatcher is
// an explicit dependency, not a global.
type PostHandler struct {
	dispatcher *notify.Dispatcher
}

func NewPostHandler(dispatcher *notify.Dispatcher) *PostHandler {
	return &PostHandler{dispatcher: dispatcher}
}

// CreatePost godoc
// @Summary      Create a post
// @Description  Creates a new post owned by the authenticated user.
// @Tags         posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body PostInput true "Post Info"
// @Success      201  {object}  feed.Item
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /posts [post]
func (h *PostHandler) CreatePost(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var input PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	privacy := input.Privacy
	switch privacy {
	case "":
		privacy = models.PrivacyPublic
	case models.PrivacyPublic, models.PrivacyFriends, models.PrivacyPrivate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid privacy value"})
		return
	}

	post := models.Post{
		AuthorID: viewerID,
		Content:  input.Content,
		ImageURL: input.ImageURL,
		Privacy:  privacy,
	}
	if err := database.DB.Create(&post).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	item, err := feed.LoadItem(database.DB, &viewerID, post.ID)
	if err != nil || item == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load created post"})
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetFeed godoc
// @Summary      Get the composed feed
// @Description  Returns one feed page. Anonymous viewers see public posts only; authenticated viewers get a friend/discovery split merged by recency.
// @Tags         posts
// @Produce      json
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {array} feed.Item
// @Router       /feed [get]
func (h *PostHandler) GetFeed(c *gin.Context) {
	viewerID := auth.ViewerID(c)
	page, limit := pageParams(c, 10)

	items, err := feed.Compose(database.DB, viewerID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feed"})
		return
	}

	c.JSON(http.StatusOK, items)
}

// GetPostByID godoc
// @Summary      Get a post by ID
// @Description  Returns a single post gated by the visibility filter. A hidden post and a missing post are indistinguishable.
// @Tags         posts
// @Produce      json
// @Param        id path int true "Post ID"
// @Success      200 {object} feed.Item
// @Failure      404 {object} ErrorResponse "Post not found"
// @Router       /posts/{id} [get]
func (h *PostHandler) GetPostByID(c *gin.Context) {
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

	c.JSON(http.StatusOK, item)
}

// GetUserPosts godoc
// @Summary      Get a user's posts
// @Description  Lists a user's posts through the visibility filter, newest first.
// @Tags         posts
// @Produce      json
// @Param        id path int true "User ID"
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {array} feed.Item
// @Failure      404 {object} ErrorResponse "User not found"
// @Router       /users/{id}/posts [get]
func (h *PostHandler) GetUserPosts(c *gin.Context) {
	viewerID := auth.ViewerID(c)
	targetUserID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var target models.User
	if err := database.DB.First(&target, uint(targetUserID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	page, limit := pageParams(c, 10)
	items, err := feed.LoadUserPosts(database.DB, viewerID, target.ID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user posts"})
		return
	}

	c.JSON(http.StatusOK, items)
}

// UpdatePost godoc
// @Summary      Edit a post
// @Description  Updates a post's content. Only the author may edit.
// @Tags         posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Post ID"
// @Param        input body UpdatePostInput true "New content"
// @Success      200 {object} feed.Item
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /posts/{id} [put]
func (h *PostHandler) UpdatePost(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	postID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	var input UpdatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var post models.Post
	if err := database.DB.First(&post, uint(postID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if post.AuthorID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to edit this post"})
		return
	}

	if err := database.DB.Model(&post).Update("content", input.Content).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	item, err := feed.LoadItem(database.DB, &viewerID, post.ID)
	if err != nil || item == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updated post"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeletePost godoc
// @Summary      Delete a post
// @Description  Deletes a post and its likes and comments. Only the author may delete.
// @Tags         posts
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Post ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /posts/{id} [delete]
func (h *PostHandler) DeletePost(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	postID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	var post models.Post
	if err := database.DB.First(&post, uint(postID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if post.AuthorID != viewerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to delete this post"})
		return
	}

	// Likes and comments go first to satisfy referential constraints.
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// ToggleLike godoc
// @Summary      React to a post
// @Description  Adds, switches, or removes a reaction. A new reaction notifies the post author unless the author reacted to their own post.
// @Tags         posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Post ID"
// @Param        input body LikeInput false "Reaction type"
// @Success      200 {object} map[string]interface{} "{"liked": true, "type": "like"}"
// @Failure      404 {object} ErrorResponse
// @Router       /posts/{id}/like [post]
func (h *PostHandler) ToggleLike(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	postID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return
	}

	var input LikeInput
	_ = c.ShouldBindJSON(&input)
	if input.Type == "" {
		input.Type = "like"
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

	var existing models.Like
	err = database.DB.Where("post_id = ? AND user_id = ?", item.ID, viewerID).First(&existing).Error
	if err == nil {
		if existing.Type == input.Type {
			// Same reaction clicked again toggles it off. Hard delete so the
			// post/user unique index stays free for a later re-reaction.
			if err := database.DB.Unscoped().Delete(&existing).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove reaction"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"liked": false, "type": nil})
			return
		}
		if err := database.DB.Model(&existing).Update("type", input.Type).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reaction"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"liked": true, "type": input.Type})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check reaction"})
		return
	}

	like := models.Like{PostID: item.ID, UserID: viewerID, Type: input.Type}
	if err := database.DB.Create(&like).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create reaction"})
		return
	}

	postIDRef := item.ID
	if _, err := h.dispatcher.Dispatch(item.Author.ID, viewerID, models.NotificationLike,
		"reacted with "+input.Type+" to your post", &postIDRef); err != nil {
		// The reaction itself is committed; the notification failing is not
		// a reason to fail the request.
		c.JSON(http.StatusOK, gin.H{"liked": true, "type": input.Type})
		return
	}

	c.JSON(http.StatusOK, gin.H{"liked": true, "type": input.Type})
}
