package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/service"
)

// ChatHandler expone el turno conversacional como stream NDJSON.
type ChatHandler struct {
	logger *zap.Logger
	chat   *service.ChatService
}

func NewChatHandler(logger *zap.Logger, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{logger: logger, chat: chat}
}

// PostChat maneja POST /api/v1/chat. La respuesta es una secuencia de
// eventos JSON separados por newline, flusheados por evento.
func (h *ChatHandler) PostChat(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		Message         string `json:"message" binding:"required"`
		ConversationID  string `json:"conversation_id"`
		PersonalityName string `json:"personality_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	chatReq := service.ChatRequest{
		UserID:          user.ID,
		Message:         req.Message,
		PersonalityName: req.PersonalityName,
	}
	if req.ConversationID != "" {
		convID, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		chatReq.ConversationID = &convID
	}

	// Los rechazos baratos van antes de comprometer el stream: mensaje
	// vacio, conversacion ajena y rate limit reciben su status HTTP real.
	if err := h.chat.Precheck(c.Request.Context(), chatReq); err != nil {
		writeTurnError(c, h.logger, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(c.Writer)
	for event := range h.chat.Chat(c.Request.Context(), chatReq) {
		if err := encoder.Encode(event); err != nil {
			// Cliente desconectado; la cancelacion del contexto corta el turno.
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
		if event.IsTerminal() {
			return
		}
	}
}

// writeTurnError agrega el caso de rate limit al mapeo de dominio: 429
// con Retry-After, el resto delega en writeDomainError.
func writeTurnError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, domain.ErrRateLimited) {
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	writeDomainError(c, logger, err)
}

// writeDomainError mapea errores de dominio a status HTTP.
func writeDomainError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAuthRequired), errors.Is(err, domain.ErrInvalidCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
