package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session es el estado de ruteo por (usuario, conversacion). Vive en memoria
// y opcionalmente se espeja en el KV store.
type Session struct {
	UserID         uuid.UUID `json:"user_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Route          string    `json:"route"`
	RouteLock      int       `json:"route_lock_remaining"`
	AgeVerified    bool      `json:"age_verified"`
	LastActivity   time.Time `json:"last_activity"`
}

// Locked indica si la clasificacion debe saltarse este turno.
func (s *Session) Locked() bool {
	return s.RouteLock > 0
}
