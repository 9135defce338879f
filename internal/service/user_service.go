package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"companion-llm/internal/domain"
	"companion-llm/internal/repository"
)

// UserService resuelve usuarios por credencial y administra API keys.
type UserService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	apiKeys  repository.APIKeyRepository
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, apiKeys repository.APIKeyRepository) *UserService {
	return &UserService{logger: logger, users: users, apiKeys: apiKeys}
}

// Resolve crea el usuario en el primer acceso autenticado.
func (s *UserService) Resolve(ctx context.Context, externalID string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.User{}, fmt.Errorf("%w: empty user id", domain.ErrValidation)
	}
	return s.users.GetOrCreateByExternalID(ctx, externalID)
}

// IssueAPIKey genera una llave opaca "cl_<lookup>.<secret>". Solo el hash
// bcrypt del secreto queda en la base.
func (s *UserService) IssueAPIKey(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)
	lookup := lookupHash(secret[:16])

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	key := domain.APIKey{
		ID:           uuid.New(),
		UserID:       userID,
		LookupKey:    lookup,
		SecretBcrypt: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.apiKeys.Create(ctx, key); err != nil {
		return "", err
	}
	return "cl_" + secret, nil
}

// VerifyAPIKey valida una llave y devuelve el usuario dueño.
func (s *UserService) VerifyAPIKey(ctx context.Context, apiKey string) (domain.User, error) {
	secret := strings.TrimPrefix(strings.TrimSpace(apiKey), "cl_")
	if len(secret) < 16 {
		return domain.User{}, domain.ErrInvalidCredential
	}
	stored, err := s.apiKeys.GetByLookupKey(ctx, lookupHash(secret[:16]))
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.SecretBcrypt), []byte(secret)); err != nil {
		return domain.User{}, domain.ErrInvalidCredential
	}
	return s.users.GetByID(ctx, stored.UserID)
}

func lookupHash(prefix string) string {
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])
}
