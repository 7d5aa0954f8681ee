package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/flow-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(q Querier) *UserRepository {
	return &UserRepository{q: q}
}

const userColumns = `id, display_name, role, is_active`

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByIDs returns the users that exist among ids.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &role, &u.IsActive); err != nil {
		return nil, err
	}
	u.Role = user.Role(role)
	return &u, nil
}
