package domain

import (
	"time"

	"github.com/google/uuid"
)

// SystemUserID es el dueño de los perfiles de personalidad globales.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// APIKey guarda la llave con hash bcrypt; el prefijo sha256 permite el lookup.
type APIKey struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	LookupKey    string    `json:"-"`
	SecretBcrypt string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
