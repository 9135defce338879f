package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

// Migrate crea el esquema si no existe. Idempotente; se corre al arrancar.
// La dimension del vector se fija por configuracion (default 384).
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	for _, stmt := range schemaStatements(embeddingDim) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func schemaStatements(embeddingDim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			preferences JSONB NOT NULL DEFAULT '{}',
			default_archetype TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS default_archetype TEXT NOT NULL DEFAULT ''`,

		// El usuario de sistema es dueño de los perfiles globales; sin esta
		// fila el seed de personalidades viola la FK en una base fresca.
		fmt.Sprintf(`INSERT INTO users (id, external_id)
			VALUES ('%s', 'system')
			ON CONFLICT (id) DO NOTHING`, domain.SystemUserID),

		`CREATE TABLE IF NOT EXISTS api_keys (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			lookup_key TEXT NOT NULL UNIQUE,
			secret_bcrypt TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			personality_id UUID NOT NULL,
			conversation_id UUID REFERENCES conversations(id) ON DELETE SET NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			category TEXT NOT NULL,
			importance_scores JSONB NOT NULL DEFAULT '{}',
			access_count INT NOT NULL DEFAULT 0,
			decay_factor DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			consolidated_from UUID[] NOT NULL DEFAULT '{}',
			superseded_by UUID,
			related_entities JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_accessed TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_personality ON memories(user_id, personality_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)`,

		`CREATE TABLE IF NOT EXISTS personality_profiles (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			archetype TEXT NOT NULL,
			traits JSONB NOT NULL DEFAULT '{}',
			behaviors JSONB NOT NULL DEFAULT '{}',
			backstory TEXT NOT NULL DEFAULT '',
			custom_instructions TEXT NOT NULL DEFAULT '',
			speaking_style TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_personality_user ON personality_profiles(user_id)`,

		`CREATE TABLE IF NOT EXISTS emotion_records (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			conversation_id UUID REFERENCES conversations(id) ON DELETE SET NULL,
			emotion TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			intensity TEXT NOT NULL,
			indicators JSONB NOT NULL DEFAULT '[]',
			snippet TEXT NOT NULL DEFAULT '',
			detected_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emotions_user_time ON emotion_records(user_id, detected_at)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			target_date TIMESTAMPTZ,
			check_in_frequency TEXT NOT NULL DEFAULT '',
			milestones JSONB NOT NULL DEFAULT '[]',
			notes JSONB NOT NULL DEFAULT '[]',
			obstacles JSONB NOT NULL DEFAULT '[]',
			mention_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status)`,

		`CREATE TABLE IF NOT EXISTS goal_progress (
			id UUID PRIMARY KEY,
			goal_id UUID NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			sentiment TEXT NOT NULL DEFAULT 'neutral',
			emotion TEXT NOT NULL DEFAULT '',
			progress_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
			content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goal_progress_goal ON goal_progress(goal_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS classification_audit (
			id UUID PRIMARY KEY,
			request_id TEXT NOT NULL,
			user_id UUID NOT NULL,
			text_hash TEXT NOT NULL,
			label TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			layer_results JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user_time ON classification_audit(user_id, created_at)`,
	}
}
