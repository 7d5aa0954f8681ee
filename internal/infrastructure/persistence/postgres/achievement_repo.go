package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/flow-engine/internal/domain/achievement"
)

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	q Querier
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(q Querier) *AchievementRepository {
	return &AchievementRepository{q: q}
}

// Award inserts the achievement. It reports false when the user already has it.
func (r *AchievementRepository) Award(ctx context.Context, a achievement.Achievement) (bool, error) {
	if _, ok := achievement.Lookup(a.Type); !ok {
		return false, achievement.ErrUnknownType
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO achievements (user_id, type, assignment_id, component_id, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, type) DO NOTHING`,
		a.UserID, string(a.Type), a.AssignmentID, a.ComponentID, a.UnlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to award achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the user's achievements, newest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Achievement, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, type, assignment_id, component_id, unlocked_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Achievement
	for rows.Next() {
		var (
			a achievement.Achievement
			t string
		)
		if err := rows.Scan(&a.UserID, &t, &a.AssignmentID, &a.ComponentID, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Type = achievement.Type(t)
		out = append(out, a)
	}
	return out, rows.Err()
}
