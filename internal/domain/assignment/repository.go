package assignment

import (
	"context"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с назначениями.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create сохраняет новое назначение.
	Create(ctx context.Context, a *Assignment) error

	// GetByID возвращает назначение. Возвращает ErrAssignmentNotFound, если не найдено.
	GetByID(ctx context.Context, id string) (*Assignment, error)

	// Update сохраняет изменения, если версия в хранилище совпадает с a.Version,
	// и увеличивает a.Version. Иначе возвращает shared.ErrConcurrentModification.
	Update(ctx context.Context, a *Assignment) error

	// Delete удаляет назначение (soft delete).
	Delete(ctx context.Context, id string) error

	// ─────────────────────────────────────────────────────────────────────────
	// Queries
	// ─────────────────────────────────────────────────────────────────────────

	// FindActiveByUserAndFlow возвращает активное назначение потока пользователю.
	// Возвращает ErrAssignmentNotFound, если такого нет.
	FindActiveByUserAndFlow(ctx context.Context, userID, flowID string) (*Assignment, error)

	// CountActiveByUser возвращает количество активных назначений пользователя.
	CountActiveByUser(ctx context.Context, userID string) (int, error)

	// ListByUser возвращает назначения пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]*Assignment, error)

	// FindDueBefore возвращает непросроченные NOT_STARTED/IN_PROGRESS назначения
	// со сроком раньше before. Назначения на паузе не возвращаются.
	FindDueBefore(ctx context.Context, before time.Time, limit int) ([]*Assignment, error)
}

// ListOptions содержит параметры для пагинации.
type ListOptions struct {
	Offset   int
	Limit    int
	Statuses []Status
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 50}
}

// WithStatuses фильтрует по статусам.
func (o ListOptions) WithStatuses(statuses ...Status) ListOptions {
	o.Statuses = statuses
	return o
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork объединяет репозитории в одну транзакцию.
type UnitOfWork interface {
	Flows() flow.Repository
	Snapshots() snapshot.Repository
	Assignments() Repository
	Progress() progress.Repository
	Users() user.Repository

	// Commit фиксирует транзакцию.
	Commit(ctx context.Context) error

	// Rollback откатывает транзакцию. Безопасен после Commit.
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory создаёт UnitOfWork.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
