package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/repository"
	"companion-llm/internal/service"
)

// ConversationHandler cubre listado, reset, limpieza de memorias y el gate
// de verificacion de edad.
type ConversationHandler struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	chat          *service.ChatService
	memories      *service.MemoryService
	sessions      *service.SessionManager
}

func NewConversationHandler(
	logger *zap.Logger,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	chat *service.ChatService,
	memories *service.MemoryService,
	sessions *service.SessionManager,
) *ConversationHandler {
	return &ConversationHandler{
		logger:        logger,
		conversations: conversations,
		messages:      messages,
		chat:          chat,
		memories:      memories,
		sessions:      sessions,
	}
}

func (h *ConversationHandler) ownedConversation(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, uuid.Nil, false
	}
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return uuid.Nil, uuid.Nil, false
	}
	return convID, user.ID, true
}

// List maneja GET /api/v1/conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	conversations, err := h.conversations.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Messages maneja GET /api/v1/conversations/:id/messages.
func (h *ConversationHandler) Messages(c *gin.Context) {
	convID, userID, ok := h.ownedConversation(c)
	if !ok {
		return
	}
	if _, err := h.conversations.GetOwned(c.Request.Context(), convID, userID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	messages, err := h.messages.ListByConversation(c.Request.Context(), convID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Reset maneja POST /api/v1/conversations/:id/reset: limpia el buffer de
// corto plazo, las memorias de largo plazo sobreviven.
func (h *ConversationHandler) Reset(c *gin.Context) {
	convID, userID, ok := h.ownedConversation(c)
	if !ok {
		return
	}
	if err := h.chat.ResetConversation(c.Request.Context(), convID, userID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// ClearMemories maneja DELETE /api/v1/conversations/:id/memories.
func (h *ConversationHandler) ClearMemories(c *gin.Context) {
	convID, userID, ok := h.ownedConversation(c)
	if !ok {
		return
	}
	if _, err := h.conversations.GetOwned(c.Request.Context(), convID, userID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	if err := h.memories.ClearConversation(c.Request.Context(), convID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// VerifyAge maneja POST /api/v1/conversations/:id/verify-age.
func (h *ConversationHandler) VerifyAge(c *gin.Context) {
	convID, userID, ok := h.ownedConversation(c)
	if !ok {
		return
	}
	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !req.Confirmed {
		c.JSON(http.StatusOK, gin.H{"age_verified": false})
		return
	}
	if _, err := h.conversations.GetOwned(c.Request.Context(), convID, userID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	session, err := h.sessions.SetAgeVerified(c.Request.Context(), userID, convID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"age_verified": session.AgeVerified})
}
