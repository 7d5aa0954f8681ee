package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// ProgressRepository implements progress.Repository for PostgreSQL.
// The step and component tree is stored as one JSONB document; the row is
// versioned as a whole.
type ProgressRepository struct {
	q Querier
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(q Querier) *ProgressRepository {
	return &ProgressRepository{q: q}
}

// Create inserts the initial progress of an assignment.
func (r *ProgressRepository) Create(ctx context.Context, fp *progress.FlowProgress) error {
	steps, err := encodeSteps(fp.Steps)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO flow_progress (assignment_id, snapshot_id, current_step_order, completed_steps,
			total_steps, percentage, steps, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fp.AssignmentID, fp.SnapshotID, fp.CurrentStepOrder, fp.CompletedSteps,
		fp.TotalSteps, fp.Percentage, steps, fp.Version, fp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}

// GetByAssignmentID loads the aggregate.
func (r *ProgressRepository) GetByAssignmentID(ctx context.Context, assignmentID string) (*progress.FlowProgress, error) {
	var (
		fp    progress.FlowProgress
		steps []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT assignment_id, snapshot_id, current_step_order, completed_steps,
		       total_steps, percentage, steps, version, updated_at
		FROM flow_progress
		WHERE assignment_id = $1`, assignmentID,
	).Scan(&fp.AssignmentID, &fp.SnapshotID, &fp.CurrentStepOrder, &fp.CompletedSteps,
		&fp.TotalSteps, &fp.Percentage, &steps, &fp.Version, &fp.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if fp.Steps, err = decodeSteps(steps); err != nil {
		return nil, fmt.Errorf("progress %s: %w", assignmentID, err)
	}
	return &fp, nil
}

// Save replaces the aggregate when the stored version matches fp.Version.
func (r *ProgressRepository) Save(ctx context.Context, fp *progress.FlowProgress) error {
	steps, err := encodeSteps(fp.Steps)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE flow_progress SET
			current_step_order = $1,
			completed_steps = $2,
			percentage = $3,
			steps = $4,
			updated_at = $5,
			version = version + 1
		WHERE assignment_id = $6 AND version = $7`,
		fp.CurrentStepOrder, fp.CompletedSteps, fp.Percentage, steps, fp.UpdatedAt,
		fp.AssignmentID, fp.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Errorf("progress", "Save", shared.ErrConcurrentModification, "progress of %s was modified concurrently", fp.AssignmentID)
	}
	fp.Version++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONB mapping
// ─────────────────────────────────────────────────────────────────────────────

type stepRow struct {
	StepSnapshotID string         `json:"stepSnapshotId"`
	Order          int            `json:"order"`
	Status         string         `json:"status"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	Components     []componentRow `json:"components"`
}

type componentRow struct {
	ComponentSnapshotID string          `json:"componentSnapshotId"`
	Status              string          `json:"status"`
	Progress            float64         `json:"progress"`
	StartedAt           *time.Time      `json:"startedAt,omitempty"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	TimeSpent           int64           `json:"timeSpent"`
	ProgressData        json.RawMessage `json:"progressData,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func encodeSteps(steps []progress.StepProgress) ([]byte, error) {
	rows := make([]stepRow, 0, len(steps))
	for _, st := range steps {
		sr := stepRow{
			StepSnapshotID: st.StepSnapshotID,
			Order:          st.Order,
			Status:         string(st.Status),
			CompletedAt:    st.CompletedAt,
			Components:     make([]componentRow, 0, len(st.Components)),
		}
		for _, c := range st.Components {
			sr.Components = append(sr.Components, componentRow{
				ComponentSnapshotID: c.ComponentSnapshotID,
				Status:              string(c.Status),
				Progress:            c.Progress,
				StartedAt:           c.StartedAt,
				CompletedAt:         c.CompletedAt,
				TimeSpent:           c.TimeSpent,
				ProgressData:        c.ProgressData,
				UpdatedAt:           c.UpdatedAt,
			})
		}
		rows = append(rows, sr)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress steps: %w", err)
	}
	return b, nil
}

func decodeSteps(b []byte) ([]progress.StepProgress, error) {
	var rows []stepRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode progress steps: %w", err)
	}
	steps := make([]progress.StepProgress, 0, len(rows))
	for _, sr := range rows {
		st := progress.StepProgress{
			StepSnapshotID: sr.StepSnapshotID,
			Order:          sr.Order,
			Status:         progress.StepStatus(sr.Status),
			CompletedAt:    sr.CompletedAt,
			Components:     make([]progress.ComponentProgress, 0, len(sr.Components)),
		}
		for _, c := range sr.Components {
			st.Components = append(st.Components, progress.ComponentProgress{
				ComponentSnapshotID: c.ComponentSnapshotID,
				Status:              progress.ComponentStatus(c.Status),
				Progress:            c.Progress,
				StartedAt:           c.StartedAt,
				CompletedAt:         c.CompletedAt,
				TimeSpent:           c.TimeSpent,
				ProgressData:        c.ProgressData,
				UpdatedAt:           c.UpdatedAt,
			})
		}
		steps = append(steps, st)
	}
	return steps, nil
}
