package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"shine/backend/internal/auth"
	"shine/backend/internal/conversation"
	"shine/backend/internal/crypto"
	"shine/backend/internal/database"
	"shine/backend/internal/hub"
	"shine/backend/internal/models"
	"shine/backend/internal/visibility"
	"shine/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// region --- DTOs ---

// SendMessageInput targets either an existing conversation or a recipient;
// exactly one of ConversationID/RecipientID must be set.
type SendMessageInput struct {
	ConversationID *uint  `json:"conversationId"`
	RecipientID    *uint  `json:"recipientId"`
	Content        string `json:"content"`
	ImageURL       string `json:"imageUrl"`
	ReplyToID      *uint  `json:"replyToId"`
}

// ReactionInput defines the structure for toggling an emoji reaction.
type ReactionInput struct {
	Emoji string `json:"emoji" binding:"required"`
}

// MessageResponse is a message with its body decrypted for the wire.
type MessageResponse struct {
	ID             uint              `json:"id"`
	ConversationID uint              `json:"conversationId"`
	Sender         PublicUserSummary `json:"sender"`
	Content        string            `json:"content"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	ReplyToID      *uint             `json:"replyToId,omitempty"`
	ReplyToContent string            `json:"replyToContent,omitempty"`
	Read           bool              `json:"read"`
	Reactions      map[string][]uint `json:"reactions"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// PublicUserSummary is the compact user slice embedded in message payloads.
type PublicUserSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// ConversationResponse is one entry in the conversation list, with the
// other participant, a decrypted last-message preview, and the unread count.
type ConversationResponse struct {
	ID            uint               `json:"id"`
	OtherUser     PublicUserSummary  `json:"otherUser"`
	LastMessage   *LastMessagePreview `json:"lastMessage,omitempty"`
	UnreadCount   int64              `json:"unreadCount"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
}

// LastMessagePreview summarizes the newest message in a conversation.
type LastMessagePreview struct {
	Content   string    `json:"content"`
	SenderID  uint      `json:"senderId"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SharedMediaResponse is one image shared inside a conversation.
type SharedMediaResponse struct {
	MessageID uint      `json:"messageId"`
	ImageURL  string    `json:"imageUrl"`
	SenderID  uint      `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// endregion

// MessageHandler serves direct messages. Bodies are encrypted before they
// hit the database and decrypted on every read path, including the
// realtime pushes.
type MessageHandler struct {
	hub    *hub.Hub
	cipher *crypto.Cipher
}

func NewMessageHandler(h *hub.Hub, cipher *crypto.Cipher) *MessageHandler {
	return &MessageHandler{hub: h, cipher: cipher}
}

func userSummary(user models.User) PublicUserSummary {
	return PublicUserSummary{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
}

func (h *MessageHandler) messageResponse(msg models.Message) MessageResponse {
	reactions := map[string][]uint{}
	if len(msg.Reactions) > 0 {
		if err := json.Unmarshal(msg.Reactions, &reactions); err != nil {
			reactions = map[string][]uint{}
		}
	}
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         userSummary(msg.Sender),
		Content:        h.cipher.Decrypt(msg.Content),
		ImageURL:       msg.ImageURL,
		ReplyToID:      msg.ReplyToID,
		ReplyToContent: h.cipher.Decrypt(msg.ReplyToContent),
		Read:           msg.Read,
		Reactions:      reactions,
		CreatedAt:      msg.CreatedAt,
	}
}

// GetConversations godoc
// @Summary      List conversations
// @Description  Returns the current user's conversations, most recent activity first, each with a decrypted last-message preview and unread count.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} ConversationResponse
// @Router       /messages/conversations [get]
func (h *MessageHandler) GetConversations(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var conversations []models.Conversation
	if err := database.DB.
		Preload("Participants.User").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ? AND cp.deleted_at IS NULL", viewerID).
		Order("conversations.last_message_at DESC").
		Find(&conversations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve conversations"})
		return
	}

	responses := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		resp := ConversationResponse{ID: conv.ID, LastMessageAt: conv.LastMessageAt}

		for _, p := range conv.Participants {
			if p.UserID != viewerID {
				resp.OtherUser = userSummary(p.User)
				break
			}
		}

		var last models.Message
		if err := database.DB.
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			First(&last).Error; err == nil {
			resp.LastMessage = &LastMessagePreview{
				Content:   h.cipher.Decrypt(last.Content),
				SenderID:  last.SenderID,
				ImageURL:  last.ImageURL,
				CreatedAt: last.CreatedAt,
			}
		}

		database.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read = ?", conv.ID, viewerID, false).
			Count(&resp.UnreadCount)

		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, responses)
}

// GetMessages godoc
// @Summary      List messages in a conversation
// @Description  Returns a page of messages in chronological order, bodies decrypted. Participants only.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  int true  "Conversation ID"
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(50)
// @Success      200 {array} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Router       /messages/conversations/{id} [get]
func (h *MessageHandler) GetMessages(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	convID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if !h.requireParticipant(c, uint(convID), viewerID) {
		return
	}

	page, limit := pageParams(c, 50)

	// Page newest-first so page 1 is the latest slice, then flip to
	// chronological for display.
	var messages []models.Message
	if err := database.DB.
		Preload("Sender").
		Where("conversation_id = ?", uint(convID)).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}

	responses := make([]MessageResponse, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		responses = append(responses, h.messageResponse(messages[i]))
	}

	c.JSON(http.StatusOK, responses)
}

// SendMessage godoc
// @Summary      Send a direct message
// @Description  Sends a message into an existing conversation or opens one with a recipient. The body is encrypted at rest and pushed decrypted to the other participant.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body SendMessageInput true "Message"
// @Success      201 {object} MessageResponse
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Router       /messages [post]
func (h *MessageHandler) SendMessage(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var input SendMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Content == "" && input.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}

	var conv *models.Conversation
	switch {
	case input.ConversationID != nil:
		if !h.requireParticipant(c, *input.ConversationID, viewerID) {
			return
		}
		var found models.Conversation
		if err := database.DB.First(&found, *input.ConversationID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		conv = &found
	case input.RecipientID != nil:
		if *input.RecipientID == viewerID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot message yourself"})
			return
		}
		resolved, err := conversation.Resolve(database.DB, viewerID, *input.RecipientID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open conversation"})
			return
		}
		conv = resolved
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId or recipientId is required"})
		return
	}

	otherID := conv.UserLowID
	if otherID == viewerID {
		otherID = conv.UserHighID
	}

	blocked, err := visibility.IsBlockedEither(database.DB, viewerID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	if blocked {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot message this user"})
		return
	}

	message := models.Message{
		ConversationID: conv.ID,
		SenderID:       viewerID,
		Content:        h.cipher.Encrypt(input.Content),
		ImageURL:       input.ImageURL,
		ReplyToID:      input.ReplyToID,
	}

	// Replies carry a snapshot of the quoted body, already encrypted.
	if input.ReplyToID != nil {
		var quoted models.Message
		if err := database.DB.
			Where("id = ? AND conversation_id = ?", *input.ReplyToID, conv.ID).
			First(&quoted).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Replied message not found"})
			return
		}
		message.ReplyToContent = quoted.Content
	}

	if err := database.DB.Create(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	if err := database.DB.Model(conv).Update("last_message_at", message.CreatedAt).Error; err != nil {
		logger.Get().Warn().Err(err).Uint("conversation", conv.ID).Msg("failed to bump conversation activity")
	}
	if err := database.DB.Preload("Sender").First(&message, message.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
		return
	}

	response := h.messageResponse(message)

	// Push to each other participant's personal room so the message lands
	// even when the thread is not open.
	others, err := conversation.OtherParticipantIDs(database.DB, conv.ID, viewerID)
	if err == nil {
		for _, id := range others {
			h.hub.Broadcast(hub.UserRoom(id), hub.Event{Type: "new_message", Payload: response})
		}
	}

	c.JSON(http.StatusCreated, response)
}

// MarkConversationRead godoc
// @Summary      Mark a conversation as read
// @Description  Marks the other participant's messages as read and pushes a read receipt into the conversation room.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Conversation ID"
// @Success      200 {object} map[string]string
// @Failure      403 {object} ErrorResponse
// @Router       /messages/conversations/{id}/read [put]
func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	convID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if !h.requireParticipant(c, uint(convID), viewerID) {
		return
	}

	// Only the other side's messages flip; the reader's own stay as sent.
	if err := database.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read = ?", uint(convID), viewerID, false).
		Update("read", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark conversation as read"})
		return
	}

	// The receipt goes to each sender's personal room, like new_message:
	// a participant with the thread closed is only in their user room.
	others, err := conversation.OtherParticipantIDs(database.DB, uint(convID), viewerID)
	if err == nil {
		payload := gin.H{"conversationId": uint(convID), "readBy": viewerID}
		for _, id := range others {
			h.hub.Broadcast(hub.UserRoom(id), hub.Event{Type: "messages_read", Payload: payload})
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation marked as read"})
}

// GetUnreadMessageCount godoc
// @Summary      Count unread messages
// @Description  Returns the total number of unread messages across the current user's conversations.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]int64
// @Router       /messages/unread-count [get]
func (h *MessageHandler) GetUnreadMessageCount(c *gin.Context) {
	viewerID := auth.MustViewerID(c)

	var count int64
	if err := database.DB.Model(&models.Message{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id AND cp.user_id = ? AND cp.deleted_at IS NULL", viewerID).
		Where("messages.sender_id <> ? AND messages.read = ?", viewerID, false).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// ToggleReaction godoc
// @Summary      Toggle an emoji reaction on a message
// @Description  Adds the reaction if absent, removes it if present, and pushes the updated reaction map into the conversation room.
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Message ID"
// @Param        input body ReactionInput true "Emoji"
// @Success      200 {object} MessageResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /messages/{id}/reactions [post]
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	var input ReactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var message models.Message
	if err := database.DB.Preload("Sender").First(&message, uint(messageID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}

	if !h.requireParticipant(c, message.ConversationID, viewerID) {
		return
	}

	reactions := map[string][]uint{}
	if len(message.Reactions) > 0 {
		if err := json.Unmarshal(message.Reactions, &reactions); err != nil {
			reactions = map[string][]uint{}
		}
	}

	users := reactions[input.Emoji]
	removed := false
	for i, id := range users {
		if id == viewerID {
			users = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		users = append(users, viewerID)
	}
	if len(users) == 0 {
		delete(reactions, input.Emoji)
	} else {
		reactions[input.Emoji] = users
	}

	encoded, err := json.Marshal(reactions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reaction"})
		return
	}
	if err := database.DB.Model(&message).Update("reactions", datatypes.JSON(encoded)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reaction"})
		return
	}
	message.Reactions = datatypes.JSON(encoded)

	response := h.messageResponse(message)
	h.hub.Broadcast(hub.ConversationRoom(message.ConversationID), hub.Event{
		Type: "message_reaction",
		Payload: gin.H{
			"messageId":      message.ID,
			"conversationId": message.ConversationID,
			"reactions":      response.Reactions,
		},
	})

	c.JSON(http.StatusOK, response)
}

// GetSharedMedia godoc
// @Summary      List shared media in a conversation
// @Description  Returns the images exchanged in a conversation, newest first. Participants only.
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Conversation ID"
// @Success      200 {array} SharedMediaResponse
// @Failure      403 {object} ErrorResponse
// @Router       /messages/conversations/{id}/media [get]
func (h *MessageHandler) GetSharedMedia(c *gin.Context) {
	viewerID := auth.MustViewerID(c)
	convID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	if !h.requireParticipant(c, uint(convID), viewerID) {
		return
	}

	var messages []models.Message
	if err := database.DB.
		Where("conversation_id = ? AND image_url <> ''", uint(convID)).
		Order("created_at DESC").
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve media"})
		return
	}

	media := make([]SharedMediaResponse, 0, len(messages))
	for _, msg := range messages {
		media = append(media, SharedMediaResponse{
			MessageID: msg.ID,
			ImageURL:  msg.ImageURL,
			SenderID:  msg.SenderID,
			CreatedAt: msg.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, media)
}

// requireParticipant writes the error response and returns false when the
// viewer is not a member of the conversation.
func (h *MessageHandler) requireParticipant(c *gin.Context, conversationID, viewerID uint) bool {
	ok, err := conversation.IsParticipant(database.DB, conversationID, viewerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check conversation access"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		return false
	}
	return true
}
