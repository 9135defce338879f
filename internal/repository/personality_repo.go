package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

type PersonalityRepository interface {
	Upsert(ctx context.Context, profile domain.PersonalityProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.PersonalityProfile, error)
	GetByUserAndArchetype(ctx context.Context, userID uuid.UUID, archetype string) (domain.PersonalityProfile, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PersonalityProfile, error)
}

type PgPersonalityRepository struct {
	pool *pgxpool.Pool
}

func NewPgPersonalityRepository(pool *pgxpool.Pool) *PgPersonalityRepository {
	return &PgPersonalityRepository{pool: pool}
}

func (r *PgPersonalityRepository) Upsert(ctx context.Context, profile domain.PersonalityProfile) error {
	traits, err := json.Marshal(profile.Traits)
	if err != nil {
		return err
	}
	behaviors, err := json.Marshal(profile.Behaviors)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO personality_profiles (
			id, user_id, archetype, traits, behaviors, backstory,
			custom_instructions, speaking_style, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			archetype = EXCLUDED.archetype,
			traits = EXCLUDED.traits,
			behaviors = EXCLUDED.behaviors,
			backstory = EXCLUDED.backstory,
			custom_instructions = EXCLUDED.custom_instructions,
			speaking_style = EXCLUDED.speaking_style,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		profile.ID, profile.UserID, profile.Archetype, traits, behaviors,
		profile.Backstory, profile.CustomInstructions, profile.SpeakingStyle,
		profile.CreatedAt, profile.UpdatedAt,
	)
	return err
}

const personalityColumns = `id, user_id, archetype, traits, behaviors, backstory,
	custom_instructions, speaking_style, created_at, updated_at`

func (r *PgPersonalityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.PersonalityProfile, error) {
	const query = `SELECT ` + personalityColumns + ` FROM personality_profiles WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PgPersonalityRepository) GetByUserAndArchetype(ctx context.Context, userID uuid.UUID, archetype string) (domain.PersonalityProfile, error) {
	const query = `SELECT ` + personalityColumns + ` FROM personality_profiles WHERE user_id = $1 AND archetype = $2 LIMIT 1`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID, archetype))
}

func (r *PgPersonalityRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PersonalityProfile, error) {
	const query = `SELECT ` + personalityColumns + ` FROM personality_profiles WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.PersonalityProfile
	for rows.Next() {
		p, err := scanPersonality(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *PgPersonalityRepository) scanOne(row pgxScanner) (domain.PersonalityProfile, error) {
	p, err := scanPersonality(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PersonalityProfile{}, domain.ErrNotFound
	}
	return p, err
}

func scanPersonality(row pgxScanner) (domain.PersonalityProfile, error) {
	var (
		p            domain.PersonalityProfile
		traitsRaw    []byte
		behaviorsRaw []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Archetype, &traitsRaw, &behaviorsRaw,
		&p.Backstory, &p.CustomInstructions, &p.SpeakingStyle,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.PersonalityProfile{}, err
	}
	if len(traitsRaw) > 0 {
		if err := json.Unmarshal(traitsRaw, &p.Traits); err != nil {
			return domain.PersonalityProfile{}, err
		}
	}
	if len(behaviorsRaw) > 0 {
		if err := json.Unmarshal(behaviorsRaw, &p.Behaviors); err != nil {
			return domain.PersonalityProfile{}, err
		}
	}
	return p, nil
}
