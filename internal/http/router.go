package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"companion-llm/internal/service"
)

// RouterParams agrupa lo que el router necesita.
type RouterParams struct {
	Logger         *zap.Logger
	JWTSvc         *service.JWTService
	UserSvc        *service.UserService
	Auth           AuthConfig
	AllowedOrigins string

	AuthH  *AuthHandler
	ChatH  *ChatHandler
	ConvH  *ConversationHandler
	StateH *StateHandler

	Health func() HealthStatus
}

// HealthStatus reporta la alcanzabilidad de cada dependencia. Solo la base
// de datos es obligatoria; redis y el upstream LLM degradan con gracia.
type HealthStatus struct {
	DB    bool `json:"db"`
	Redis bool `json:"redis"`
	LLM   bool `json:"llm"`
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(p.Logger), gin.Recovery(), corsMiddleware(p.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		status := HealthStatus{DB: true, Redis: true, LLM: true}
		if p.Health != nil {
			status = p.Health()
		}
		if !status.DB {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": status.DB, "redis": status.Redis, "llm": status.LLM})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": status.DB, "redis": status.Redis, "llm": status.LLM})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/token", p.AuthH.CreateToken)
	v1.POST("/auth/validate", p.AuthH.ValidateToken)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(p.JWTSvc, p.UserSvc, p.Auth))

	authed.POST("/auth/api-keys", p.AuthH.CreateAPIKey)
	authed.POST("/chat", p.ChatH.PostChat)

	authed.GET("/conversations", p.ConvH.List)
	authed.GET("/conversations/:id/messages", p.ConvH.Messages)
	authed.POST("/conversations/:id/reset", p.ConvH.Reset)
	authed.DELETE("/conversations/:id/memories", p.ConvH.ClearMemories)
	authed.POST("/conversations/:id/verify-age", p.ConvH.VerifyAge)

	authed.GET("/preferences", p.StateH.GetPreferences)
	authed.PUT("/preferences", p.StateH.SetPreferences)

	authed.GET("/personalities", p.StateH.ListPersonalities)
	authed.POST("/personalities", p.StateH.SavePersonality)

	authed.GET("/goals", p.StateH.ListGoals)
	authed.POST("/goals", p.StateH.CreateGoal)
	authed.PUT("/goals/:id/status", p.StateH.UpdateGoalStatus)
	authed.GET("/goals/:id/progress", p.StateH.GoalProgress)

	authed.GET("/emotions", p.StateH.EmotionHistory)
	authed.GET("/emotions/trend", p.StateH.EmotionTrend)
	authed.GET("/emotions/stats", p.StateH.EmotionStats)

	return r
}
