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

type GoalRepository interface {
	Create(ctx context.Context, goal domain.Goal) error
	Update(ctx context.Context, goal domain.Goal) error
	GetOwned(ctx context.Context, id, userID uuid.UUID) (domain.Goal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string) ([]domain.Goal, error)
	AppendProgress(ctx context.Context, entry domain.GoalProgress) error
	ListProgress(ctx context.Context, goalID uuid.UUID) ([]domain.GoalProgress, error)
}

type PgGoalRepository struct {
	pool *pgxpool.Pool
}

func NewPgGoalRepository(pool *pgxpool.Pool) *PgGoalRepository {
	return &PgGoalRepository{pool: pool}
}

const goalColumns = `id, user_id, title, description, category, status, progress,
	target_date, check_in_frequency, milestones, notes, obstacles, mention_count,
	created_at, updated_at`

func (r *PgGoalRepository) Create(ctx context.Context, goal domain.Goal) error {
	milestones, notes, obstacles, err := marshalGoalLists(goal)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		goal.ID, goal.UserID, goal.Title, goal.Description, goal.Category,
		goal.Status, goal.Progress, goal.TargetDate, goal.CheckInFreq,
		milestones, notes, obstacles, goal.MentionCount,
		goal.CreatedAt, goal.UpdatedAt,
	)
	return err
}

func (r *PgGoalRepository) Update(ctx context.Context, goal domain.Goal) error {
	milestones, notes, obstacles, err := marshalGoalLists(goal)
	if err != nil {
		return err
	}
	const query = `
		UPDATE goals SET
			title = $2, description = $3, category = $4, status = $5,
			progress = $6, target_date = $7, check_in_frequency = $8,
			milestones = $9, notes = $10, obstacles = $11,
			mention_count = $12, updated_at = $13
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		goal.ID, goal.Title, goal.Description, goal.Category, goal.Status,
		goal.Progress, goal.TargetDate, goal.CheckInFreq,
		milestones, notes, obstacles, goal.MentionCount, goal.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgGoalRepository) GetOwned(ctx context.Context, id, userID uuid.UUID) (domain.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE id = $1 AND user_id = $2`
	g, err := scanGoal(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Goal{}, domain.ErrNotFound
	}
	return g, err
}

func (r *PgGoalRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string) ([]domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r *PgGoalRepository) AppendProgress(ctx context.Context, entry domain.GoalProgress) error {
	const query = `
		INSERT INTO goal_progress (id, goal_id, type, sentiment, emotion, progress_delta, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.GoalID, entry.Type, entry.Sentiment, entry.Emotion,
		entry.ProgressDelta, entry.Content, entry.CreatedAt,
	)
	return err
}

func (r *PgGoalRepository) ListProgress(ctx context.Context, goalID uuid.UUID) ([]domain.GoalProgress, error) {
	const query = `
		SELECT id, goal_id, type, sentiment, emotion, progress_delta, content, created_at
		FROM goal_progress
		WHERE goal_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.GoalProgress
	for rows.Next() {
		var e domain.GoalProgress
		if err := rows.Scan(&e.ID, &e.GoalID, &e.Type, &e.Sentiment, &e.Emotion,
			&e.ProgressDelta, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalGoalLists(goal domain.Goal) ([]byte, []byte, []byte, error) {
	milestones, err := json.Marshal(emptyIfNil(goal.Milestones))
	if err != nil {
		return nil, nil, nil, err
	}
	notes, err := json.Marshal(emptyIfNil(goal.Notes))
	if err != nil {
		return nil, nil, nil, err
	}
	obstacles, err := json.Marshal(emptyIfNil(goal.Obstacles))
	if err != nil {
		return nil, nil, nil, err
	}
	return milestones, notes, obstacles, nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func scanGoal(row pgxScanner) (domain.Goal, error) {
	var (
		g             domain.Goal
		milestonesRaw []byte
		notesRaw      []byte
		obstaclesRaw  []byte
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.Title, &g.Description, &g.Category, &g.Status,
		&g.Progress, &g.TargetDate, &g.CheckInFreq,
		&milestonesRaw, &notesRaw, &obstaclesRaw, &g.MentionCount,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return domain.Goal{}, err
	}
	for raw, dst := range map[*[]byte]*[]string{
		&milestonesRaw: &g.Milestones,
		&notesRaw:      &g.Notes,
		&obstaclesRaw:  &g.Obstacles,
	} {
		if len(*raw) > 0 {
			if err := json.Unmarshal(*raw, dst); err != nil {
				return domain.Goal{}, err
			}
		}
	}
	return g, nil
}
