// Package user содержит минимальную модель пользователя, нужную движку:
// роль для авторизации действий и признак активности для проверки бадди.
package user

import (
	"context"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Role - роль пользователя.
type Role string

const (
	RoleLearner Role = "learner"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleLearner, RoleMentor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ErrUserNotFound - пользователь не найден.
var ErrUserNotFound = shared.NewDomainError("user", "Find", shared.ErrNotFound, "user not found")

// User - участник обучения: ученик, ментор или администратор.
type User struct {
	ID          string
	DisplayName string
	Role        Role
	IsActive    bool
}

// IsAdmin возвращает true для администраторов.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanMentor возвращает true, если пользователь может быть бадди.
func (u *User) CanMentor() bool {
	return u != nil && u.IsActive && (u.Role == RoleMentor || u.Role == RoleAdmin)
}

// Repository определяет операции с пользователями.
type Repository interface {
	// GetByID возвращает пользователя. Возвращает ErrUserNotFound, если не найден.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByIDs возвращает найденных пользователей; отсутствующие пропускаются.
	GetByIDs(ctx context.Context, ids []string) ([]*User, error)
}
