package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

// SnapshotRepository implements snapshot.Repository for PostgreSQL.
// Snapshot rows are written once; only the assignment back-reference changes.
type SnapshotRepository struct {
	q Querier
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(q Querier) *SnapshotRepository {
	return &SnapshotRepository{q: q}
}

// Create inserts the snapshot with all steps and components.
func (r *SnapshotRepository) Create(ctx context.Context, s *snapshot.FlowSnapshot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO flow_snapshots (id, title, description, original_flow_id, original_flow_version,
			assignment_id, created_by, metadata, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Title, s.Description, s.OriginalFlowID, s.OriginalFlowVersion,
		s.AssignmentID, s.CreatedBy, nullJSON(s.Metadata), s.Checksum, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	for _, st := range s.Steps {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO snapshot_steps (id, snapshot_id, original_step_id, step_order, title, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			st.ID, s.ID, st.OriginalStepID, st.Order, st.Title, st.Description,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot step %d: %w", st.Order, err)
		}
		for _, c := range st.Components {
			if _, err := r.q.Exec(ctx, `
				INSERT INTO snapshot_components (id, step_id, original_component_id, component_order,
					is_required, type, type_version, data)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				c.ID, st.ID, c.OriginalComponentID, c.Order, c.IsRequired, string(c.Type), c.TypeVersion, []byte(c.Data),
			); err != nil {
				return fmt.Errorf("failed to insert snapshot component %d of step %d: %w", c.Order, st.Order, err)
			}
		}
	}
	return nil
}

// GetByID returns the snapshot with steps and components in order.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*snapshot.FlowSnapshot, error) {
	var (
		s        snapshot.FlowSnapshot
		metadata []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, title, description, original_flow_id, original_flow_version,
		       assignment_id, created_by, metadata, checksum, created_at
		FROM flow_snapshots
		WHERE id = $1`, id,
	).Scan(&s.ID, &s.Title, &s.Description, &s.OriginalFlowID, &s.OriginalFlowVersion,
		&s.AssignmentID, &s.CreatedBy, &metadata, &s.Checksum, &s.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	s.Metadata = metadata

	rows, err := r.q.Query(ctx, `
		SELECT s.id, s.original_step_id, s.step_order, s.title, s.description,
		       c.id, c.original_component_id, c.component_order, c.is_required, c.type, c.type_version, c.data
		FROM snapshot_steps s
		JOIN snapshot_components c ON c.step_id = s.id
		WHERE s.snapshot_id = $1
		ORDER BY s.step_order, c.component_order`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st    snapshot.StepSnapshot
			c     snapshot.ComponentSnapshot
			cType string
			data  []byte
		)
		if err := rows.Scan(&st.ID, &st.OriginalStepID, &st.Order, &st.Title, &st.Description,
			&c.ID, &c.OriginalComponentID, &c.Order, &c.IsRequired, &cType, &c.TypeVersion, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot step: %w", err)
		}
		c.Type = content.Type(cType)
		c.Data = data

		// Rows arrive ordered by step, so a new step id always starts a new step.
		if n := len(s.Steps); n == 0 || s.Steps[n-1].ID != st.ID {
			s.Steps = append(s.Steps, st)
		}
		last := &s.Steps[len(s.Steps)-1]
		last.Components = append(last.Components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

// AttachAssignment sets the back-reference once the assignment exists.
func (r *SnapshotRepository) AttachAssignment(ctx context.Context, snapshotID, assignmentID string) error {
	return r.setAssignment(ctx, snapshotID, &assignmentID)
}

// Detach clears the back-reference; the snapshot itself is kept.
func (r *SnapshotRepository) Detach(ctx context.Context, snapshotID string) error {
	return r.setAssignment(ctx, snapshotID, nil)
}

func (r *SnapshotRepository) setAssignment(ctx context.Context, snapshotID string, assignmentID *string) error {
	tag, err := r.q.Exec(ctx, `UPDATE flow_snapshots SET assignment_id = $1 WHERE id = $2`, assignmentID, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to update snapshot assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return snapshot.ErrSnapshotNotFound
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
