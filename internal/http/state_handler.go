package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/service"
)

// StateHandler cubre preferencias, personalidades, metas y emociones.
type StateHandler struct {
	logger        *zap.Logger
	preferences   *service.PreferenceService
	personalities *service.PersonalityService
	goals         *service.GoalService
	emotions      *service.EmotionService
}

func NewStateHandler(
	logger *zap.Logger,
	preferences *service.PreferenceService,
	personalities *service.PersonalityService,
	goals *service.GoalService,
	emotions *service.EmotionService,
) *StateHandler {
	return &StateHandler{
		logger:        logger,
		preferences:   preferences,
		personalities: personalities,
		goals:         goals,
		emotions:      emotions,
	}
}

func (h *StateHandler) authUser(c *gin.Context) (uuid.UUID, bool) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	return user.ID, true
}

// GetPreferences maneja GET /api/v1/preferences.
func (h *StateHandler) GetPreferences(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	prefs, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// SetPreferences maneja PUT /api/v1/preferences. Merge campo a campo.
func (h *StateHandler) SetPreferences(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	var req domain.Preferences
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	merged, err := h.preferences.Set(c.Request.Context(), userID, req)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": merged})
}

// ListPersonalities maneja GET /api/v1/personalities.
func (h *StateHandler) ListPersonalities(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	profiles, err := h.personalities.List(c.Request.Context(), userID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"personalities": profiles})
}

// SavePersonality maneja POST /api/v1/personalities.
func (h *StateHandler) SavePersonality(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	var req domain.PersonalityProfile
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.UserID = userID
	saved, err := h.personalities.SaveCustom(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"personality": saved})
}

// ListGoals maneja GET /api/v1/goals?status=active.
func (h *StateHandler) ListGoals(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	goals, err := h.goals.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// CreateGoal maneja POST /api/v1/goals.
func (h *StateHandler) CreateGoal(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	var req domain.Goal
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.UserID = userID
	goal, err := h.goals.Create(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"goal": goal})
}

// UpdateGoalStatus maneja PUT /api/v1/goals/:id/status.
func (h *StateHandler) UpdateGoalStatus(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	goal, err := h.goals.UpdateStatus(c.Request.Context(), goalID, userID, req.Status)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goal": goal})
}

// GoalProgress maneja GET /api/v1/goals/:id/progress.
func (h *StateHandler) GoalProgress(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
		return
	}
	progress, err := h.goals.Progress(c.Request.Context(), goalID, userID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// EmotionHistory maneja GET /api/v1/emotions?days=7&limit=50.
func (h *StateHandler) EmotionHistory(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	days := queryInt(c, "days", 7)
	limit := queryInt(c, "limit", 50)
	records, err := h.emotions.History(c.Request.Context(), userID, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emotions": records})
}

// EmotionTrend maneja GET /api/v1/emotions/trend?days=7.
func (h *StateHandler) EmotionTrend(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	days := queryInt(c, "days", 7)
	trend, err := h.emotions.Trend(c.Request.Context(), userID, time.Duration(days)*24*time.Hour)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

// EmotionStats maneja GET /api/v1/emotions/stats?days=7: conteo por etiqueta.
func (h *StateHandler) EmotionStats(c *gin.Context) {
	userID, ok := h.authUser(c)
	if !ok {
		return
	}
	days := queryInt(c, "days", 7)
	records, err := h.emotions.History(c.Request.Context(), userID, time.Duration(days)*24*time.Hour, 500)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Emotion]++
	}
	c.JSON(http.StatusOK, gin.H{"total": len(records), "by_emotion": counts})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
