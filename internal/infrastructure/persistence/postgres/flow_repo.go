package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLOW REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// FlowRepository implements flow.Repository for PostgreSQL.
// Create and Update write several tables and must run inside a transaction.
type FlowRepository struct {
	q Querier
}

// NewFlowRepository creates a new FlowRepository.
func NewFlowRepository(q Querier) *FlowRepository {
	return &FlowRepository{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts the flow with all steps and components.
func (r *FlowRepository) Create(ctx context.Context, f *flow.Flow) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO flows (id, version, title, description, is_active, default_deadline_days, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.Version, f.Title, f.Description, f.IsActive, f.DefaultDeadlineDays, f.CreatedBy, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.Errorf("flow", "Create", shared.ErrAlreadyExists, "flow %s already exists", f.ID)
		}
		return fmt.Errorf("failed to create flow: %w", err)
	}
	return r.insertSteps(ctx, f)
}

// GetByID returns a fully loaded flow.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*flow.Flow, error) {
	var f flow.Flow
	err := r.q.QueryRow(ctx, `
		SELECT id, version, title, description, is_active, default_deadline_days, created_by, created_at, updated_at
		FROM flows
		WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&f.ID, &f.Version, &f.Title, &f.Description, &f.IsActive, &f.DefaultDeadlineDays, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, flow.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	if f.Steps, err = r.loadSteps(ctx, f.ID); err != nil {
		return nil, err
	}
	return &f, nil
}

// Update replaces the flow row and its steps.
func (r *FlowRepository) Update(ctx context.Context, f *flow.Flow) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE flows SET
			version = $1,
			title = $2,
			description = $3,
			is_active = $4,
			default_deadline_days = $5,
			updated_at = $6
		WHERE id = $7 AND deleted_at IS NULL`,
		f.Version, f.Title, f.Description, f.IsActive, f.DefaultDeadlineDays, f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flow.ErrFlowNotFound
	}

	if _, err := r.q.Exec(ctx, `DELETE FROM flow_steps WHERE flow_id = $1`, f.ID); err != nil {
		return fmt.Errorf("failed to clear flow steps: %w", err)
	}
	return r.insertSteps(ctx, f)
}

// Delete soft-deletes the flow. Snapshots and assignments are unaffected.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE flows SET deleted_at = NOW(), is_active = FALSE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return flow.ErrFlowNotFound
	}
	return nil
}

// ListActive returns active flows without steps.
func (r *FlowRepository) ListActive(ctx context.Context, limit, offset int) ([]*flow.Flow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, version, title, description, is_active, default_deadline_days, created_by, created_at, updated_at
		FROM flows
		WHERE is_active AND deleted_at IS NULL
		ORDER BY title
		LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var out []*flow.Flow
	for rows.Next() {
		var f flow.Flow
		if err := rows.Scan(&f.ID, &f.Version, &f.Title, &f.Description, &f.IsActive, &f.DefaultDeadlineDays, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Methods
// ─────────────────────────────────────────────────────────────────────────────

func (r *FlowRepository) insertSteps(ctx context.Context, f *flow.Flow) error {
	for _, st := range f.Steps {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO flow_steps (id, flow_id, step_order, title, description)
			VALUES ($1, $2, $3, $4, $5)`,
			st.ID, f.ID, st.Order, st.Title, st.Description,
		); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", st.Order, err)
		}
		for _, c := range st.Components {
			if _, err := r.q.Exec(ctx, `
				INSERT INTO flow_components (id, step_id, component_order, type, type_version, is_required, data)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.ID, st.ID, c.Order, string(c.Type), c.TypeVersion, c.IsRequired, []byte(c.Data),
			); err != nil {
				return fmt.Errorf("failed to insert component %d of step %d: %w", c.Order, st.Order, err)
			}
		}
	}
	return nil
}

func (r *FlowRepository) loadSteps(ctx context.Context, flowID string) ([]flow.Step, error) {
	rows, err := r.q.Query(ctx, `
		SELECT s.id, s.step_order, s.title, s.description,
		       c.id, c.component_order, c.type, c.type_version, c.is_required, c.data
		FROM flow_steps s
		LEFT JOIN flow_components c ON c.step_id = s.id
		WHERE s.flow_id = $1
		ORDER BY s.step_order, c.component_order`, flowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow steps: %w", err)
	}
	defer rows.Close()

	var steps []flow.Step
	index := map[string]int{}
	for rows.Next() {
		var (
			st               flow.Step
			cID, cType       *string
			cOrder, cTypeVer *int
			cRequired        *bool
			cData            []byte
		)
		if err := rows.Scan(&st.ID, &st.Order, &st.Title, &st.Description, &cID, &cOrder, &cType, &cTypeVer, &cRequired, &cData); err != nil {
			return nil, fmt.Errorf("failed to scan flow step: %w", err)
		}
		i, ok := index[st.ID]
		if !ok {
			steps = append(steps, st)
			i = len(steps) - 1
			index[st.ID] = i
		}
		if cID == nil {
			continue
		}
		steps[i].Components = append(steps[i].Components, flow.ComponentDefinition{
			ID:          *cID,
			Order:       deref(cOrder),
			Type:        content.Type(deref(cType)),
			TypeVersion: deref(cTypeVer),
			IsRequired:  deref(cRequired),
			Data:        cData,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
