package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

type ConversationRepository interface {
	Create(ctx context.Context, conv domain.Conversation) error
	// GetOwned devuelve ErrNotFound tanto si la conversacion no existe como
	// si pertenece a otro usuario; ambos casos son indistinguibles.
	GetOwned(ctx context.Context, id, userID uuid.UUID) (domain.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
	SetSummary(ctx context.Context, id uuid.UUID, summary string) error
	Touch(ctx context.Context, id uuid.UUID) error
}

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

func (r *PgConversationRepository) Create(ctx context.Context, conv domain.Conversation) error {
	const query = `
		INSERT INTO conversations (id, user_id, title, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.Summary, conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (r *PgConversationRepository) GetOwned(ctx context.Context, id, userID uuid.UUID) (domain.Conversation, error) {
	const query = `
		SELECT id, user_id, title, summary, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.Title, &c.Summary, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return c, err
}

func (r *PgConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	const query = `
		SELECT id, user_id, title, summary, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *PgConversationRepository) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	const query = `UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, title)
	return err
}

func (r *PgConversationRepository) SetSummary(ctx context.Context, id uuid.UUID, summary string) error {
	const query = `UPDATE conversations SET summary = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, summary)
	return err
}

func (r *PgConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE conversations SET updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
