package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	LLMAPIKey  string `env:"LLM_API_KEY,required"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	// Modelo barato para el juez L4, extraccion y resumenes.
	LLMUtilityModel string `env:"LLM_UTILITY_MODEL" envDefault:"gpt-5-mini"`

	EmbeddingBaseURL string `env:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey  string `env:"EMBEDDING_API_KEY"`
	EmbeddingModel   string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"384"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	TokenSecret    string `env:"TOKEN_SECRET" envDefault:"dev-secret-change-me"`
	AuthRequired   bool   `env:"AUTH_REQUIRED" envDefault:"true"`
	AuthDevHeader  bool   `env:"AUTH_DEV_HEADER" envDefault:"false"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	// Umbrales del pipeline. Nombres cortos siguiendo la notacion del equipo.
	BufferSize         int     `env:"BUFFER_SIZE" envDefault:"10"`           // M
	RetrievalTopK      int     `env:"RETRIEVAL_TOP_K" envDefault:"5"`        // K
	JudgeThreshold     float64 `env:"JUDGE_THRESHOLD" envDefault:"0.7"`      // tau
	RouteLockTurns     int     `env:"ROUTE_LOCK_TURNS" envDefault:"5"`       // N
	BufferIdleMinutes  int     `env:"BUFFER_IDLE_MINUTES" envDefault:"60"`   // T_idle
	SessionTTLHours    int     `env:"SESSION_TTL_HOURS" envDefault:"24"`     // T_session
	MemoryHalfLifeDays float64 `env:"MEMORY_HALF_LIFE_DAYS" envDefault:"30"` // T_half
	MinSimilarity      float64 `env:"MIN_SIMILARITY" envDefault:"0.3"`
	ConsolidateFloor   float64 `env:"CONSOLIDATE_FLOOR" envDefault:"0.85"`
	ConsolidateMerge   float64 `env:"CONSOLIDATE_MERGE" envDefault:"0.92"`
	RateLimitPerMinute int     `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	JudgeCacheSize     int     `env:"JUDGE_CACHE_SIZE" envDefault:"1024"`
	PromptTokenBudget  int     `env:"PROMPT_TOKEN_BUDGET" envDefault:"6000"`

	// Deadlines del turno, en segundos.
	ClassifyTimeoutSec   int `env:"CLASSIFY_TIMEOUT_SEC" envDefault:"2"`
	FanoutTimeoutSec     int `env:"FANOUT_TIMEOUT_SEC" envDefault:"5"`
	FirstChunkTimeoutSec int `env:"FIRST_CHUNK_TIMEOUT_SEC" envDefault:"15"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction devuelve true si el ambiente es productivo.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate aplica los chequeos obligatorios de produccion.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if !c.IsProduction() {
		return nil
	}
	if len(c.TokenSecret) < 32 || c.TokenSecret == "dev-secret-change-me" {
		return fmt.Errorf("TOKEN_SECRET must be non-default and at least 32 chars in production")
	}
	if !c.AuthRequired {
		return fmt.Errorf("AUTH_REQUIRED must be enabled in production")
	}
	if c.AuthDevHeader {
		return fmt.Errorf("AUTH_DEV_HEADER is not allowed in production")
	}
	if strings.TrimSpace(c.AllowedOrigins) == "" || strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("ALLOWED_ORIGINS must be explicit in production")
	}
	return nil
}
