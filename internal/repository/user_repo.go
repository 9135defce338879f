package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	GetOrCreateByExternalID(ctx context.Context, externalID string) (domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error)
	SetPreferences(ctx context.Context, userID uuid.UUID, prefs domain.Preferences) error
	// El arquetipo default del usuario; "" significa sin eleccion.
	GetDefaultArchetype(ctx context.Context, userID uuid.UUID) (string, error)
	SetDefaultArchetype(ctx context.Context, userID uuid.UUID, archetype string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

// GetOrCreateByExternalID crea el usuario en el primer acceso autenticado.
func (r *PgUserRepository) GetOrCreateByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	const query = `
		INSERT INTO users (id, external_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, created_at
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, uuid.New(), externalID, time.Now().UTC()).Scan(
		&u.ID,
		&u.ExternalID,
		&u.CreatedAt,
	)
	return u, err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const query = `
		SELECT id, external_id, created_at
		FROM users
		WHERE id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.ExternalID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

func (r *PgUserRepository) GetPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	const query = `SELECT preferences FROM users WHERE id = $1`
	var raw []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Preferences{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Preferences{}, err
	}
	var prefs domain.Preferences
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return domain.Preferences{}, err
		}
	}
	return prefs, nil
}

func (r *PgUserRepository) SetPreferences(ctx context.Context, userID uuid.UUID, prefs domain.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	const query = `UPDATE users SET preferences = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) GetDefaultArchetype(ctx context.Context, userID uuid.UUID) (string, error) {
	const query = `SELECT default_archetype FROM users WHERE id = $1`
	var archetype string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&archetype)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return archetype, err
}

func (r *PgUserRepository) SetDefaultArchetype(ctx context.Context, userID uuid.UUID, archetype string) error {
	const query = `UPDATE users SET default_archetype = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, archetype)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// APIKeyRepository persiste llaves de API (hash bcrypt, lookup sha256).
type APIKeyRepository interface {
	Create(ctx context.Context, key domain.APIKey) error
	GetByLookupKey(ctx context.Context, lookup string) (domain.APIKey, error)
}

type PgAPIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewPgAPIKeyRepository(pool *pgxpool.Pool) *PgAPIKeyRepository {
	return &PgAPIKeyRepository{pool: pool}
}

func (r *PgAPIKeyRepository) Create(ctx context.Context, key domain.APIKey) error {
	const query = `
		INSERT INTO api_keys (id, user_id, lookup_key, secret_bcrypt, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, key.ID, key.UserID, key.LookupKey, key.SecretBcrypt, key.CreatedAt)
	return err
}

func (r *PgAPIKeyRepository) GetByLookupKey(ctx context.Context, lookup string) (domain.APIKey, error) {
	const query = `
		SELECT id, user_id, lookup_key, secret_bcrypt, created_at
		FROM api_keys
		WHERE lookup_key = $1
	`
	var k domain.APIKey
	err := r.pool.QueryRow(ctx, query, lookup).Scan(&k.ID, &k.UserID, &k.LookupKey, &k.SecretBcrypt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return k, err
}
