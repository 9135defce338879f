package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
	"companion-llm/internal/service"
)

const authUserKey = "auth_user"

// AuthConfig controla que credenciales acepta el middleware.
type AuthConfig struct {
	Required       bool
	AllowDevHeader bool
}

// AuthMiddleware resuelve la identidad en orden de prioridad: bearer JWT,
// despues X-API-Key, despues X-User-ID (solo con el flag de desarrollo).
func AuthMiddleware(jwtSvc *service.JWTService, userSvc *service.UserService, cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			token := strings.TrimSpace(header[len("Bearer "):])
			claims, err := jwtSvc.Parse(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				c.Abort()
				return
			}
			user, err := userSvc.Resolve(ctx, claims.UserID)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				c.Abort()
				return
			}
			c.Set(authUserKey, user)
			c.Next()
			return
		}

		if apiKey := strings.TrimSpace(c.GetHeader("X-API-Key")); apiKey != "" {
			user, err := userSvc.VerifyAPIKey(ctx, apiKey)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				c.Abort()
				return
			}
			c.Set(authUserKey, user)
			c.Next()
			return
		}

		if cfg.AllowDevHeader {
			if devID := strings.TrimSpace(c.GetHeader("X-User-ID")); devID != "" {
				user, err := userSvc.Resolve(ctx, devID)
				if err != nil {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
					c.Abort()
					return
				}
				c.Set(authUserKey, user)
				c.Next()
				return
			}
		}

		if cfg.Required {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetAuthUser obtiene el usuario autenticado del contexto.
func GetAuthUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(authUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware aplica la lista de origenes permitidos.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	allowAll := allowedOrigins == "*"

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := allowAll
		if !allowed {
			for _, o := range origins {
				if o == origin {
					allowed = true
					break
				}
			}
		}
		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-User-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		} else if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
