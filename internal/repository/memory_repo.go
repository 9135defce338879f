package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"companion-llm/internal/domain"
)

// MemorySearchParams acota una busqueda por similitud coseno.
type MemorySearchParams struct {
	UserID        uuid.UUID
	PersonalityID uuid.UUID // uuid.Nil = sin scoping por personalidad
	Query         pgvector.Vector
	K             int
	MinSimilarity float64
	Filters       domain.MemoryFilters
}

type MemoryRepository interface {
	Create(ctx context.Context, memory domain.Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Memory, error)
	SearchSimilar(ctx context.Context, params MemorySearchParams) ([]domain.ScoredMemory, error)
	Update(ctx context.Context, memory domain.Memory) error
	UpdateAccess(ctx context.Context, id uuid.UUID, accessedAt time.Time, decay float64) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Supersede(ctx context.Context, oldID, newID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error
	GetByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Memory, error)
	GetByUserAndPersonality(ctx context.Context, userID, personalityID uuid.UUID) ([]domain.Memory, error)
}

type PgMemoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgMemoryRepository(pool *pgxpool.Pool) *PgMemoryRepository {
	return &PgMemoryRepository{pool: pool}
}

const memoryColumns = `id, user_id, personality_id, conversation_id, content, embedding,
	category, importance_scores, access_count, decay_factor, is_active,
	consolidated_from, superseded_by, related_entities, created_at, updated_at, last_accessed`

func (r *PgMemoryRepository) Create(ctx context.Context, memory domain.Memory) error {
	importance, err := json.Marshal(memory.Importance)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(memory.Entities)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	var conv interface{}
	if memory.ConversationID != nil {
		conv = *memory.ConversationID
	}
	var superseded interface{}
	if memory.SupersededBy != nil {
		superseded = *memory.SupersededBy
	}
	_, err = r.pool.Exec(ctx, query,
		memory.ID,
		memory.UserID,
		memory.PersonalityID,
		conv,
		memory.Content,
		memory.Embedding,
		memory.Category,
		importance,
		memory.AccessCount,
		memory.DecayFactor,
		memory.IsActive,
		uuidSlice(memory.ConsolidatedFrom),
		superseded,
		entities,
		memory.CreatedAt,
		memory.UpdatedAt,
		memory.LastAccessedAt,
	)
	return err
}

func (r *PgMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Memory, error) {
	const query = `SELECT ` + memoryColumns + ` FROM memories WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Memory{}, domain.ErrNotFound
	}
	return m, err
}

// SearchSimilar devuelve similitudes coseno crudas; el ranking combinado es
// responsabilidad del orquestador.
func (r *PgMemoryRepository) SearchSimilar(ctx context.Context, params MemorySearchParams) ([]domain.ScoredMemory, error) {
	if params.K <= 0 {
		params.K = 5
	}
	query := `SELECT ` + memoryColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE user_id = $2`
	args := []interface{}{params.Query, params.UserID}

	if params.PersonalityID != uuid.Nil {
		args = append(args, params.PersonalityID)
		query += fmt.Sprintf(" AND personality_id = $%d", len(args))
	}
	if params.Filters.ActiveOnly {
		query += " AND is_active = true"
	}
	if len(params.Filters.Categories) > 0 {
		args = append(args, params.Filters.Categories)
		query += fmt.Sprintf(" AND category = ANY($%d)", len(args))
	}
	if params.Filters.MinImportance > 0 {
		args = append(args, params.Filters.MinImportance)
		query += fmt.Sprintf(" AND (importance_scores->>'aggregate')::float >= $%d", len(args))
	}
	if params.MinSimilarity > 0 {
		args = append(args, 1.0-params.MinSimilarity)
		query += fmt.Sprintf(" AND (embedding <=> $1) <= $%d", len(args))
	}
	args = append(args, params.K)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredMemory
	for rows.Next() {
		m, sim, err := scanScoredMemory(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.ScoredMemory{Memory: m, Similarity: sim})
	}
	return results, rows.Err()
}

func (r *PgMemoryRepository) Update(ctx context.Context, memory domain.Memory) error {
	importance, err := json.Marshal(memory.Importance)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(memory.Entities)
	if err != nil {
		return err
	}
	const query = `
		UPDATE memories SET
			content = $2,
			embedding = $3,
			category = $4,
			importance_scores = $5,
			decay_factor = $6,
			is_active = $7,
			consolidated_from = $8,
			related_entities = $9,
			updated_at = $10
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		memory.ID,
		memory.Content,
		memory.Embedding,
		memory.Category,
		importance,
		memory.DecayFactor,
		memory.IsActive,
		uuidSlice(memory.ConsolidatedFrom),
		entities,
		memory.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgMemoryRepository) UpdateAccess(ctx context.Context, id uuid.UUID, accessedAt time.Time, decay float64) error {
	const query = `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = $2, decay_factor = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, accessedAt, decay)
	return err
}

func (r *PgMemoryRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE memories SET is_active = false, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Supersede marca la memoria vieja como superada; queda inactiva.
func (r *PgMemoryRepository) Supersede(ctx context.Context, oldID, newID uuid.UUID) error {
	const query = `
		UPDATE memories
		SET superseded_by = $2, is_active = false, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, oldID, newID)
	return err
}

func (r *PgMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM memories WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgMemoryRepository) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	const query = `DELETE FROM memories WHERE conversation_id = $1`
	_, err := r.pool.Exec(ctx, query, conversationID)
	return err
}

func (r *PgMemoryRepository) GetByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Memory, error) {
	const query = `SELECT ` + memoryColumns + ` FROM memories WHERE conversation_id = $1 ORDER BY created_at`
	return r.queryMemories(ctx, query, conversationID)
}

func (r *PgMemoryRepository) GetByUserAndPersonality(ctx context.Context, userID, personalityID uuid.UUID) ([]domain.Memory, error) {
	const query = `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = $1 AND personality_id = $2 ORDER BY created_at`
	return r.queryMemories(ctx, query, userID, personalityID)
}

func (r *PgMemoryRepository) queryMemories(ctx context.Context, query string, args ...interface{}) ([]domain.Memory, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// pgxScanner abstrae Row/Rows para reusar los scans y simplificar tests.
type pgxScanner interface {
	Scan(...interface{}) error
}

func scanMemory(row pgxScanner) (domain.Memory, error) {
	var (
		m             domain.Memory
		conv          *uuid.UUID
		superseded    *uuid.UUID
		importanceRaw []byte
		entitiesRaw   []byte
		consolidated  []uuid.UUID
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.PersonalityID, &conv, &m.Content, &m.Embedding,
		&m.Category, &importanceRaw, &m.AccessCount, &m.DecayFactor, &m.IsActive,
		&consolidated, &superseded, &entitiesRaw, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt,
	)
	if err != nil {
		return domain.Memory{}, err
	}
	m.ConversationID = conv
	m.SupersededBy = superseded
	m.ConsolidatedFrom = consolidated
	if len(importanceRaw) > 0 {
		if err := json.Unmarshal(importanceRaw, &m.Importance); err != nil {
			return domain.Memory{}, err
		}
	}
	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &m.Entities); err != nil {
			return domain.Memory{}, err
		}
	}
	return m, nil
}

func scanScoredMemory(row pgxScanner) (domain.Memory, float64, error) {
	var (
		m             domain.Memory
		conv          *uuid.UUID
		superseded    *uuid.UUID
		importanceRaw []byte
		entitiesRaw   []byte
		consolidated  []uuid.UUID
		similarity    float64
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.PersonalityID, &conv, &m.Content, &m.Embedding,
		&m.Category, &importanceRaw, &m.AccessCount, &m.DecayFactor, &m.IsActive,
		&consolidated, &superseded, &entitiesRaw, &m.CreatedAt, &m.UpdatedAt, &m.LastAccessedAt,
		&similarity,
	)
	if err != nil {
		return domain.Memory{}, 0, err
	}
	m.ConversationID = conv
	m.SupersededBy = superseded
	m.ConsolidatedFrom = consolidated
	if len(importanceRaw) > 0 {
		if err := json.Unmarshal(importanceRaw, &m.Importance); err != nil {
			return domain.Memory{}, 0, err
		}
	}
	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &m.Entities); err != nil {
			return domain.Memory{}, 0, err
		}
	}
	// Los floats del indice pueden salir apenas fuera de [0,1] por redondeo.
	similarity = math.Max(0, math.Min(1, similarity))
	return m, similarity, nil
}

func uuidSlice(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
