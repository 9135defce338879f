package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-llm/internal/domain"
)

type EmotionRepository interface {
	Append(ctx context.Context, record domain.EmotionRecord) error
	ListRecent(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.EmotionRecord, error)
}

type PgEmotionRepository struct {
	pool *pgxpool.Pool
}

func NewPgEmotionRepository(pool *pgxpool.Pool) *PgEmotionRepository {
	return &PgEmotionRepository{pool: pool}
}

func (r *PgEmotionRepository) Append(ctx context.Context, record domain.EmotionRecord) error {
	indicators, err := json.Marshal(record.Indicators)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO emotion_records (id, user_id, conversation_id, emotion, confidence, intensity, indicators, snippet, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var conv interface{}
	if record.ConversationID != nil {
		conv = *record.ConversationID
	}
	_, err = r.pool.Exec(ctx, query,
		record.ID, record.UserID, conv, record.Emotion, record.Confidence,
		record.Intensity, indicators, record.Snippet, record.DetectedAt,
	)
	return err
}

func (r *PgEmotionRepository) ListRecent(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.EmotionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, conversation_id, emotion, confidence, intensity, indicators, snippet, detected_at
		FROM emotion_records
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.EmotionRecord
	for rows.Next() {
		var (
			rec           domain.EmotionRecord
			conv          *uuid.UUID
			indicatorsRaw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &conv, &rec.Emotion, &rec.Confidence,
			&rec.Intensity, &indicatorsRaw, &rec.Snippet, &rec.DetectedAt); err != nil {
			return nil, err
		}
		rec.ConversationID = conv
		if len(indicatorsRaw) > 0 {
			if err := json.Unmarshal(indicatorsRaw, &rec.Indicators); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
