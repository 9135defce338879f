package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"companion-llm/internal/domain"
)

// SessionStore es el espejo opcional en KV; last-writer-wins.
type SessionStore interface {
	Load(ctx context.Context, conversationID uuid.UUID) (domain.Session, bool, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, conversationID uuid.UUID) error
}

// SessionManager mantiene el estado de ruteo por conversacion: ruta actual,
// contador de route lock y flag de verificacion de edad. El mapa en proceso
// es cache; cuando hay store configurado, el store manda.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	store    SessionStore
	ttl      time.Duration
	lockN    int
}

func NewSessionManager(store SessionStore, ttl time.Duration, lockTurns int) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTurns <= 0 {
		lockTurns = 5
	}
	return &SessionManager{
		sessions: make(map[uuid.UUID]*domain.Session),
		store:    store,
		ttl:      ttl,
		lockN:    lockTurns,
	}
}

// Get carga o crea la sesion de la conversacion. Las sesiones vencidas se
// descartan y se reemplazan por una fresca en NORMAL.
func (m *SessionManager) Get(ctx context.Context, userID, conversationID uuid.UUID) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if s, ok := m.sessions[conversationID]; ok && now.Sub(s.LastActivity) < m.ttl {
		s.LastActivity = now
		return *s, nil
	}

	if m.store != nil {
		if s, ok, err := m.store.Load(ctx, conversationID); err == nil && ok {
			if now.Sub(s.LastActivity) < m.ttl {
				s.LastActivity = now
				m.sessions[conversationID] = &s
				return s, nil
			}
		}
	}

	fresh := domain.Session{
		UserID:         userID,
		ConversationID: conversationID,
		Route:          domain.RouteNormal,
		LastActivity:   now,
	}
	m.sessions[conversationID] = &fresh
	return fresh, nil
}

// Update persiste la sesion modificada (cache + store si existe).
func (m *SessionManager) Update(ctx context.Context, session domain.Session) error {
	session.LastActivity = time.Now().UTC()
	m.mu.Lock()
	copied := session
	m.sessions[session.ConversationID] = &copied
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Save(ctx, session)
	}
	return nil
}

// ApplyClassification actualiza ruta y route lock segun la etiqueta.
// EXPLICIT/FETISH con edad verificada arma el lock a N; ROMANCE nunca
// lockea; cualquier otra etiqueta limpia el lock.
func (m *SessionManager) ApplyClassification(session *domain.Session, label string) {
	route := domain.RouteForLabel(label)
	session.Route = route
	if (route == domain.RouteExplicit || route == domain.RouteFetish) && session.AgeVerified {
		session.RouteLock = m.lockN
		return
	}
	session.RouteLock = 0
}

// ConsumeLock decrementa el contador tras un turno ruteado por lock.
// Nunca se decrementa especulativamente antes de confirmar el turno.
func (m *SessionManager) ConsumeLock(session *domain.Session) {
	if session.RouteLock > 0 {
		session.RouteLock--
	}
}

// SetAgeVerified marca la conversacion como verificada.
func (m *SessionManager) SetAgeVerified(ctx context.Context, userID, conversationID uuid.UUID) (domain.Session, error) {
	session, err := m.Get(ctx, userID, conversationID)
	if err != nil {
		return domain.Session{}, err
	}
	session.AgeVerified = true
	return session, m.Update(ctx, session)
}

// Evict elimina sesiones inactivas mas alla del TTL.
func (m *SessionManager) Evict() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-m.ttl)
	evicted := 0
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartEviction corre Evict periodicamente hasta que el contexto muera.
func (m *SessionManager) StartEviction(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Evict()
			}
		}
	}()
}
