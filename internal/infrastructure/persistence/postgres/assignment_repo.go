package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

const assignmentColumns = `id, user_id, flow_id, flow_snapshot_id, assigned_by, status, deadline, is_overdue,
	assigned_at, started_at, completed_at, buddy_ids, paused_at, paused_by_id, pause_reason,
	time_spent, last_activity, version, created_at, updated_at`

// Statuses counted against the per-user active limit and the uniqueness rule.
var activeStatuses = []string{
	string(assignment.StatusNotStarted),
	string(assignment.StatusInProgress),
	string(assignment.StatusPaused),
}

// AssignmentRepository implements assignment.Repository for PostgreSQL.
type AssignmentRepository struct {
	q Querier
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(q Querier) *AssignmentRepository {
	return &AssignmentRepository{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new assignment. A second active assignment of the same
// flow hits ux_assignments_active and maps to ErrActiveAssignmentExists.
func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO flow_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		a.ID, a.UserID, a.FlowID, a.FlowSnapshotID, a.AssignedBy, string(a.Status), a.Deadline, a.IsOverdue,
		a.AssignedAt, a.StartedAt, a.CompletedAt, a.BuddyIDs, a.PausedAt, a.PausedByID, a.PauseReason,
		a.TimeSpent, a.LastActivity, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return assignment.ErrActiveAssignmentExists
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// GetByID returns a non-deleted assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*assignment.Assignment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM flow_assignments
		WHERE id = $1 AND deleted_at IS NULL`, id)
	a, err := scanAssignment(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, assignment.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// Update writes all mutable fields when the stored version matches a.Version.
func (r *AssignmentRepository) Update(ctx context.Context, a *assignment.Assignment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE flow_assignments SET
			status = $1,
			deadline = $2,
			is_overdue = $3,
			started_at = $4,
			completed_at = $5,
			buddy_ids = $6,
			paused_at = $7,
			paused_by_id = $8,
			pause_reason = $9,
			time_spent = $10,
			last_activity = $11,
			updated_at = $12,
			version = version + 1
		WHERE id = $13 AND version = $14 AND deleted_at IS NULL`,
		string(a.Status), a.Deadline, a.IsOverdue, a.StartedAt, a.CompletedAt, a.BuddyIDs,
		a.PausedAt, a.PausedByID, a.PauseReason, a.TimeSpent, a.LastActivity, a.UpdatedAt,
		a.ID, a.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return assignment.ErrActiveAssignmentExists
		}
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Errorf("assignment", "Update", shared.ErrConcurrentModification, "assignment %s was modified concurrently or deleted", a.ID)
	}
	a.Version++
	return nil
}

// Delete soft-deletes the assignment.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE flow_assignments SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrAssignmentNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// FindActiveByUserAndFlow returns the single active assignment of a flow.
func (r *AssignmentRepository) FindActiveByUserAndFlow(ctx context.Context, userID, flowID string) (*assignment.Assignment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM flow_assignments
		WHERE user_id = $1 AND flow_id = $2 AND status = ANY($3) AND deleted_at IS NULL
		LIMIT 1`, userID, flowID, activeStatuses)
	a, err := scanAssignment(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, assignment.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to find active assignment: %w", err)
	}
	return a, nil
}

// CountActiveByUser counts NOT_STARTED, IN_PROGRESS and PAUSED assignments.
func (r *AssignmentRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM flow_assignments
		WHERE user_id = $1 AND status = ANY($2) AND deleted_at IS NULL`, userID, activeStatuses,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active assignments: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's assignments, newest first.
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID string, opts assignment.ListOptions) ([]*assignment.Assignment, error) {
	if opts.Limit <= 0 {
		opts.Limit = assignment.DefaultListOptions().Limit
	}

	var statuses []string
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM flow_assignments
		WHERE user_id = $1 AND deleted_at IS NULL
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY assigned_at DESC, id
		LIMIT $3 OFFSET $4`, userID, statuses, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return collectAssignments(rows)
}

// FindDueBefore returns running assignments whose deadline passed before
// the given time and which have not been marked overdue yet.
func (r *AssignmentRepository) FindDueBefore(ctx context.Context, before time.Time, limit int) ([]*assignment.Assignment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM flow_assignments
		WHERE deleted_at IS NULL AND is_overdue = FALSE
		  AND status IN ('NOT_STARTED', 'IN_PROGRESS')
		  AND deadline < $1
		ORDER BY deadline
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due assignments: %w", err)
	}
	return collectAssignments(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Methods
// ─────────────────────────────────────────────────────────────────────────────

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	var (
		a      assignment.Assignment
		status string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.FlowID, &a.FlowSnapshotID, &a.AssignedBy, &status, &a.Deadline, &a.IsOverdue,
		&a.AssignedAt, &a.StartedAt, &a.CompletedAt, &a.BuddyIDs, &a.PausedAt, &a.PausedByID, &a.PauseReason,
		&a.TimeSpent, &a.LastActivity, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = assignment.Status(status)
	return &a, nil
}

func collectAssignments(rows pgx.Rows) ([]*assignment.Assignment, error) {
	defer rows.Close()

	var out []*assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return out, nil
}
