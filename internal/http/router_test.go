package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"companion-llm/internal/domain"
)

func newHealthRouter(health func() HealthStatus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterParams{
		Logger: zap.NewNop(),
		AuthH:  &AuthHandler{},
		ChatH:  &ChatHandler{},
		ConvH:  &ConversationHandler{},
		StateH: &StateHandler{},
		Health: health,
	})
}

func TestHealthReportsDependencies(t *testing.T) {
	r := newHealthRouter(func() HealthStatus {
		return HealthStatus{DB: true, Redis: false, LLM: true}
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status string `json:"status"`
		DB     bool   `json:"db"`
		Redis  bool   `json:"redis"`
		LLM    bool   `json:"llm"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	// Redis caido no degrada el servicio, pero queda reportado.
	if body.Status != "ok" || !body.DB || body.Redis || !body.LLM {
		t.Fatalf("health body = %+v", body)
	}
}

func TestHealthDegradedWithoutDB(t *testing.T) {
	r := newHealthRouter(func() HealthStatus {
		return HealthStatus{DB: false, Redis: true, LLM: true}
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Status string `json:"status"`
		DB     bool   `json:"db"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "degraded" || body.DB {
		t.Fatalf("health body = %+v", body)
	}
}

func TestWriteTurnErrorStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeTurnError(c, logger, domain.ErrRateLimited)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	writeTurnError(c, logger, domain.ErrNotFound)
	if w.Code != http.StatusNotFound {
		t.Fatalf("not found status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	writeTurnError(c, logger, fmt.Errorf("%w: message must not be empty", domain.ErrValidation))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation status = %d, want 400", w.Code)
	}
}
