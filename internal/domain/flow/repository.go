package flow

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с шаблонами потоков.
type Repository interface {
	// Create сохраняет поток вместе со всеми шагами и компонентами.
	Create(ctx context.Context, f *Flow) error

	// GetByID возвращает полностью загруженный поток (все шаги и компоненты).
	// Возвращает ErrFlowNotFound, если поток не найден.
	GetByID(ctx context.Context, id string) (*Flow, error)

	// Update сохраняет изменения потока, заменяя шаги и компоненты.
	Update(ctx context.Context, f *Flow) error

	// Delete удаляет поток (soft delete).
	Delete(ctx context.Context, id string) error

	// ListActive возвращает активные потоки без шагов.
	ListActive(ctx context.Context, limit, offset int) ([]*Flow, error)
}
