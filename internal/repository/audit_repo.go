package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

// AuditEntry registra un resultado de clasificacion. Append-only.
type AuditEntry struct {
	ID         uuid.UUID
	RequestID  string
	UserID     uuid.UUID
	TextHash   string
	Label      string
	Confidence float64
	Layers     []domain.LayerResult
	CreatedAt  time.Time
}

type AuditRepository interface {
	Append(ctx context.Context, entry AuditEntry) error
}

type PgAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPgAuditRepository(pool *pgxpool.Pool) *PgAuditRepository {
	return &PgAuditRepository{pool: pool}
}

func (r *PgAuditRepository) Append(ctx context.Context, entry AuditEntry) error {
	layers, err := json.Marshal(entry.Layers)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO classification_audit (id, request_id, user_id, text_hash, label, confidence, layer_results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID, entry.RequestID, entry.UserID, entry.TextHash,
		entry.Label, entry.Confidence, layers, entry.CreatedAt,
	)
	return err
}
