package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"companion-llm/internal/service"
)

// AuthHandler emite y valida credenciales.
type AuthHandler struct {
	logger  *zap.Logger
	jwtSvc  *service.JWTService
	userSvc *service.UserService
}

func NewAuthHandler(logger *zap.Logger, jwtSvc *service.JWTService, userSvc *service.UserService) *AuthHandler {
	return &AuthHandler{logger: logger, jwtSvc: jwtSvc, userSvc: userSvc}
}

// CreateToken maneja POST /api/v1/auth/token. Crea el usuario si no existe.
func (h *AuthHandler) CreateToken(c *gin.Context) {
	var req struct {
		UserID         string `json:"user_id" binding:"required"`
		ExpiresInHours int    `json:"expires_in_hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.ExpiresInHours <= 0 {
		req.ExpiresInHours = 24
	}

	if _, err := h.userSvc.Resolve(c.Request.Context(), req.UserID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	ttl := time.Duration(req.ExpiresInHours) * time.Hour
	token, expires, err := h.jwtSvc.Issue(req.UserID, ttl)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   int(time.Until(expires).Seconds()),
		"user_id":      req.UserID,
	})
}

// ValidateToken maneja POST /api/v1/auth/validate.
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	claims, err := h.jwtSvc.Parse(req.Token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"user_id":    claims.UserID,
		"expires_at": claims.ExpiresAt.Time.UTC(),
	})
}

// CreateAPIKey maneja POST /api/v1/auth/api-keys para el usuario autenticado.
// El secreto se muestra una sola vez.
func (h *AuthHandler) CreateAPIKey(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	key, err := h.userSvc.IssueAPIKey(c.Request.Context(), user.ID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"api_key": key})
}
